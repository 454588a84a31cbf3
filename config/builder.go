package config

import (
	"fmt"
	"io"
	"strings"
)

// Builder assembles a qemu -readconfig file. Entries keep insertion order
// so the generated file is deterministic.
type Builder struct {
	sections []Section
}

type Section struct {
	Name    string
	Entries []Entry
}

type Entry struct {
	Key   string
	Value string
}

func (s *Section) Set(key string, value string) {
	s.Entries = append(s.Entries, Entry{Key: key, Value: value})
}

func (b *Builder) AddSection(section Section) {
	b.sections = append(b.sections, section)
}

func (b *Builder) String() string {
	sb := &strings.Builder{}
	// writing to a string builder never returns an error
	_, _ = b.WriteTo(sb)
	return sb.String()
}

func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	total := int64(0)

	for _, section := range b.sections {
		n, err := fmt.Fprintf(w, "[%s]\n", section.Name)
		total += int64(n)
		if err != nil {
			return total, err
		}

		for _, entry := range section.Entries {
			n, err := fmt.Fprintf(w, "%s = \"%s\"\n", entry.Key, entry.Value)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}

		n, err = fmt.Fprint(w, "\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Smp returns the smp-opts section for a flat topology of count cores.
func Smp(count int) Section {
	s := Section{Name: "smp-opts"}
	s.Set("sockets", "1")
	s.Set("cores", fmt.Sprintf("%d", count))
	s.Set("threads", "1")
	return s
}

// Memory returns the memory section sized in MiB.
func Memory(sizeMB int) Section {
	s := Section{Name: "memory"}
	s.Set("size", fmt.Sprintf("%dM", sizeMB))
	return s
}
