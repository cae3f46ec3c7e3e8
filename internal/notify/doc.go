// Package notify сообщает внешним системам о завершении entry.
//
//   - WebhookNotifier — POST {public_id, status} на адреса из Entry.Notifications
//   - OnceNotifier — обёртка, которая пропускает повторные уведомления
//     об одной entry (Redis SET NX)
//
// Ошибки доставки возвращаются вызывающему и на статус entry не влияют.
package notify
