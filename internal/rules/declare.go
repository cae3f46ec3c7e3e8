package rules

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/jobs"
)

// EndpointPackage — встроенный PackageValidator вместо внешнего сервиса.
const EndpointPackage = "package"

// Declaration — одно правило из переменной RULES.
//
// Формат: category:name:format[:target]=endpoint
//
//	validation:gtfs.canonical:gtfs=http://gtfs-validator:8080/validate
//	validation:gtfs.package:gtfs=package
//	conversion:gtfs2netex:gtfs:netex=http://converter:8080/gtfs2netex
type Declaration struct {
	Category domain.Category
	Name     string
	Format   string
	Target   string
	Endpoint string
}

// ParseDeclarations разбирает список объявлений через запятую.
func ParseDeclarations(s string) ([]Declaration, error) {
	var decls []Declaration
	seen := make(map[string]bool)

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		decl, err := parseDeclaration(item)
		if err != nil {
			return nil, err
		}
		if seen[decl.Name] {
			return nil, fmt.Errorf("%w: rule %q declared twice", ErrInvalidDeclaration, decl.Name)
		}
		seen[decl.Name] = true
		decls = append(decls, decl)
	}
	return decls, nil
}

func parseDeclaration(item string) (Declaration, error) {
	head, endpoint, ok := strings.Cut(item, "=")
	if !ok || endpoint == "" {
		return Declaration{}, fmt.Errorf("%w: %q: missing endpoint", ErrInvalidDeclaration, item)
	}

	parts := strings.Split(head, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Declaration{}, fmt.Errorf("%w: %q: expected category:name:format[:target]", ErrInvalidDeclaration, item)
	}

	decl := Declaration{
		Category: domain.Category(parts[0]),
		Name:     parts[1],
		Format:   strings.ToLower(parts[2]),
		Endpoint: endpoint,
	}
	if len(parts) == 4 {
		decl.Target = strings.ToLower(parts[3])
	}

	if !decl.Category.Valid() {
		return Declaration{}, fmt.Errorf("%w: %q: unknown category %q", ErrInvalidDeclaration, item, parts[0])
	}
	if decl.Name == "" || decl.Format == "" {
		return Declaration{}, fmt.Errorf("%w: %q: name and format are required", ErrInvalidDeclaration, item)
	}
	if decl.Category == domain.CategoryConversion && decl.Target == "" {
		return Declaration{}, fmt.Errorf("%w: %q: conversion needs a target format", ErrInvalidDeclaration, item)
	}
	return decl, nil
}

// Build создаёт правило по объявлению.
func (d Declaration) Build(client *http.Client, timeout time.Duration) (Rule, error) {
	if d.Endpoint == EndpointPackage {
		if d.Category != domain.CategoryValidation {
			return nil, fmt.Errorf("%w: %s: package check is a validation", ErrInvalidDeclaration, d.Name)
		}
		rule, err := NewPackageRule(d.Format, client)
		if err != nil {
			return nil, err
		}
		rule.name = d.Name
		return rule, nil
	}

	remote := NewRemote(d.Endpoint)
	if client != nil {
		remote.Client = client
	}
	if timeout > 0 {
		remote.Timeout = timeout
	}

	opt := WithConfiguration(d.configuration())
	if d.Category == domain.CategoryConversion {
		return NewConverterRule(d.Name, d.Format, d.Target, remote, opt), nil
	}
	return NewValidatorRule(d.Name, d.Format, remote, opt), nil
}

// configuration выбирает тип конфигурации правила.
func (d Declaration) configuration() func() jobs.Configuration {
	switch {
	case d.Category == domain.CategoryValidation && d.Format == "netex":
		return func() jobs.Configuration { return &jobs.NetexValidation{} }
	case d.Category == domain.CategoryConversion && d.Format == "gtfs" && d.Target == "netex":
		return func() jobs.Configuration { return &jobs.GTFSToNetex{} }
	case d.Category == domain.CategoryConversion && d.Format == "netex" && d.Target == "gtfs":
		return func() jobs.Configuration { return &jobs.NetexToGTFS{} }
	default:
		return func() jobs.Configuration { return &jobs.Generic{} }
	}
}

// BuildRegistry разбирает RULES и собирает реестр.
func BuildRegistry(declarations string, client *http.Client, timeout time.Duration) (*Registry, error) {
	decls, err := ParseDeclarations(declarations)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	for _, d := range decls {
		rule, err := d.Build(client, timeout)
		if err != nil {
			return nil, err
		}
		registry.Register(rule)
	}
	return registry, nil
}
