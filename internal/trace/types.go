// Package trace provides the CSV execution-trace writer and stub-event
// tagging spec.md §6 describes as THE CORE's optional output. Adapted
// from the teacher's internal/trace/types.go (Tag/Tags/Annotations/
// Event/Enricher shape kept), re-tagged from Cocos2d-x/JNI/Lua
// categories to the x86/WinAPI categories this core's stub packages
// actually report.
package trace

import "time"

// Tag represents a trace event category. Tags are stored without a #
// prefix; the prefix is added on rendering.
type Tag string

const (
	Kernel32       Tag = "kernel32"
	Ntdll          Tag = "ntdll"
	Msvcrt         Tag = "msvcrt"
	CriticalSec    Tag = "critsec"
	Malloc         Tag = "malloc"
	String         Tag = "string"
	Seh            Tag = "seh"
	RepStep        Tag = "rep"
	SchedSwitch    Tag = "sched"
	Fault          Tag = "fault"
	Network        Tag = "network"
	File           Tag = "file"
	Dynload        Tag = "dynload"
	Fallback       Tag = "fallback"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with a # prefix, for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

func (a Annotations) Set(k, v string) { a[k] = v }
func (a Annotations) Get(k string) string { return a[k] }
func (a Annotations) Has(k string) bool { _, ok := a[k]; return ok }

// Event is a stub/fault/scheduler activity record, independent of the
// per-instruction CSV rows Recorder writes: these back an optional
// secondary view (filterable by tag) rather than the main trace.
type Event struct {
	RIP         uint64 // return address of the stub call, or the faulting RIP
	Tags        Tags
	Name        string
	Detail      string
	Annotations Annotations
	Timestamp   time.Time
}

func NewEvent(rip uint64, category, name, detail string) *Event {
	return &Event{
		RIP:         rip,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

func (e *Event) AddTag(tag Tag) { e.Tags.Add(tag) }

func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}

// Enricher adds derived tags to an event based on its category/name.
type Enricher func(e *Event)

// DefaultEnricher classifies the well-known stub categories into the
// coarser tags a trace filter is likely to query by.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}
	switch e.Tags[0] {
	case Msvcrt:
		switch e.Name {
		case "malloc", "calloc", "realloc", "free":
			e.AddTag(Malloc)
		case "memcpy", "memmove", "memset", "strcpy", "strcat":
			e.AddTag(String)
		}
	case Kernel32:
		switch e.Name {
		case "EnterCriticalSection", "LeaveCriticalSection", "TryEnterCriticalSection":
			e.AddTag(CriticalSec)
		}
	}
}
