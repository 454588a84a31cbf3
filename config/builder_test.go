package config

import "testing"

func TestBuilderOutputIsDeterministic(t *testing.T) {
	build := func() string {
		b := &Builder{}
		b.AddSection(Smp(2))
		b.AddSection(Memory(512))
		return b.String()
	}

	want := "[smp-opts]\n" +
		"sockets = \"1\"\n" +
		"cores = \"2\"\n" +
		"threads = \"1\"\n" +
		"\n" +
		"[memory]\n" +
		"size = \"512M\"\n" +
		"\n"

	first := build()
	if first != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, first)
	}

	for range 10 {
		if got := build(); got != first {
			t.Fatal("builder output varies between runs")
		}
	}
}

func TestSectionSetKeepsOrder(t *testing.T) {
	s := Section{Name: "test"}
	s.Set("b", "2")
	s.Set("a", "1")

	b := &Builder{}
	b.AddSection(s)

	want := "[test]\nb = \"2\"\na = \"1\"\n\n"
	if got := b.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
