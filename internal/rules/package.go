package rules

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/findings"
	"github.com/shaiso/Feedline/internal/jobs"
)

// Коды finding'ов PackageValidator.
const (
	CodeURLConnection  = findings.CodeURLConnection
	CodeIOError        = findings.CodeIOError
	CodeURLNotFound    = "url_not_found"
	CodeInvalidArchive = "invalid_archive"
	CodeMissingFile    = "missing_file"
	CodeEmptyArchive   = "empty_archive"
)

// maxPackageSize — предел размера скачиваемого архива.
const maxPackageSize = 512 << 20

// PackageLayout — ожидаемое содержимое архива формата.
type PackageLayout struct {
	// Required — файлы, которые обязаны быть в корне архива.
	Required []string

	// Extensions — архив должен содержать хотя бы один файл с таким расширением.
	Extensions []string
}

// Layouts — известные форматы архивов.
var Layouts = map[string]PackageLayout{
	"gtfs": {
		Required: []string{"agency.txt", "stops.txt", "routes.txt", "trips.txt", "stop_times.txt"},
	},
	"netex": {
		Extensions: []string{".xml"},
	},
}

// PackageValidator проверяет, что URL entry отдаёт ZIP-архив
// с обязательными файлами формата.
type PackageValidator struct {
	Client *http.Client
	Layout PackageLayout
}

// NewPackageRule создаёт правило "<format>.package".
func NewPackageRule(format string, client *http.Client) (*ValidatorRule, error) {
	layout, ok := Layouts[format]
	if !ok {
		return nil, fmt.Errorf("%w: no package layout for format %q", ErrInvalidDeclaration, format)
	}
	if client == nil {
		client = &http.Client{}
	}
	return NewValidatorRule(format+".package", format, &PackageValidator{Client: client, Layout: layout}), nil
}

// Validate скачивает архив и проверяет состав файлов.
func (v *PackageValidator) Validate(ctx context.Context, entry *domain.Entry, _ jobs.Configuration, task *domain.Task) (*domain.Report, error) {
	data, err := v.download(ctx, entry.URL)
	if err != nil {
		return nil, err
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewDataError(CodeInvalidArchive, err)
	}

	report := domain.NewReport(task.Name)
	finding := func(code, message string) {
		report.AddFinding(NewFinding(task.Name, entry, task, "package", code, message, domain.SeverityError))
	}

	members := make(map[string]bool, len(archive.File))
	for _, f := range archive.File {
		if f.FileInfo().IsDir() {
			continue
		}
		members[strings.ToLower(f.Name)] = true
	}
	if len(members) == 0 {
		finding(CodeEmptyArchive, "archive contains no files")
		return report, nil
	}

	for _, name := range v.Layout.Required {
		if !members[name] {
			finding(CodeMissingFile, fmt.Sprintf("required file %s is missing", name))
		}
	}

	if len(v.Layout.Extensions) > 0 && !hasExtension(members, v.Layout.Extensions) {
		finding(CodeMissingFile, fmt.Sprintf("archive has no %s files", strings.Join(v.Layout.Extensions, "/")))
	}

	report.Outputs["files"] = len(members)
	return report, nil
}

// download скачивает архив целиком в память.
//
// Недоступный URL — ошибка данных (finding), а не инфраструктуры:
// адрес прислал клиент.
func (v *PackageValidator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewDataError(CodeURLConnection, err)
	}

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewDataError(CodeURLConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, NewDataError(CodeURLNotFound, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, NewDataError(CodeURLConnection, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPackageSize+1))
	if err != nil {
		return nil, NewDataError(CodeIOError, err)
	}
	if len(data) > maxPackageSize {
		return nil, NewDataError(CodeInvalidArchive, errors.New("archive exceeds size limit"))
	}
	return data, nil
}

func hasExtension(members map[string]bool, extensions []string) bool {
	for name := range members {
		ext := path.Ext(name)
		for _, want := range extensions {
			if ext == want {
				return true
			}
		}
	}
	return false
}
