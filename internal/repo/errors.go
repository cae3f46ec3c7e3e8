package repo

import "errors"

var (
	// ErrNotFound — entry или task с таким идентификатором нет.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — entry с таким public_id уже принят.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — запрошенный статус недопустим для операции
	// (например, Finish с нетерминальным статусом).
	ErrInvalidState = errors.New("invalid state")
)
