// Package platform provides the desktop stand-ins for device services the
// chat core depends on: a contact directory, a call placer and an audio loop
// player.
package platform

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/iris-chat/internal/service/action"
)

// Contact is one entry of the contacts file.
type Contact struct {
	Name   string `yaml:"name"`
	Number string `yaml:"number"`
}

type contactsFile struct {
	Contacts []Contact `yaml:"contacts"`
}

// ContactBook resolves display names to phone numbers. Matching ignores case
// and surrounding whitespace.
type ContactBook struct {
	numbers map[string]string
}

var _ action.ContactDirectory = (*ContactBook)(nil)

// NewContactBook indexes contacts. Later entries win on duplicate names.
func NewContactBook(contacts []Contact) *ContactBook {
	b := &ContactBook{numbers: make(map[string]string, len(contacts))}
	for _, c := range contacts {
		name := normalizeName(c.Name)
		number := strings.TrimSpace(c.Number)
		if name == "" || number == "" {
			continue
		}
		b.numbers[name] = number
	}
	return b
}

// LoadContacts reads a YAML contacts file. An empty path yields an empty book.
func LoadContacts(path string) (*ContactBook, error) {
	if strings.TrimSpace(path) == "" {
		return NewContactBook(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contacts file: %w", err)
	}

	var file contactsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing contacts file %s: %w", path, err)
	}
	return NewContactBook(file.Contacts), nil
}

// Len reports how many contacts are known.
func (b *ContactBook) Len() int {
	return len(b.numbers)
}

func (b *ContactBook) LookupNumber(_ context.Context, name string) (string, error) {
	if number, ok := b.numbers[normalizeName(name)]; ok {
		return number, nil
	}
	return "", action.ErrContactNotFound
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
