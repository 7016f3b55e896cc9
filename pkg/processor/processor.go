// Package processor turns raw command output into structured values
// through named, chainable line processors.
package processor

import (
	"fmt"
	"regexp"
	"strings"
)

// Shape is the form a processed output is returned in.
type Shape string

const (
	ShapeKeyValue Shape = "key_value" // map[string]any from "key: value" lines
	ShapeTable    Shape = "table"     // []map[string]any, first line is the header
	ShapeLines    Shape = "lines"     // []string
	ShapeText     Shape = "text"      // string
)

const (
	ProcessorTypeTrim         string = "trim"
	ProcessorTypeDropEmpty    string = "drop_empty"
	ProcessorTypeDropComments string = "drop_comments"
	ProcessorTypeDropBanner   string = "drop_banner"
	ProcessorTypeSplitLines   string = "split_lines"
	ProcessorTypeVersionFacts string = "version_facts"
)

// Processor transforms lines.
type Processor interface {
	Process([]string) ([]string, error)
	Name() string
}

// ProcessorChain holds registered processors and applies them in the requested order.
type ProcessorChain struct {
	processors map[string]Processor
}

func NewProcessorChain() *ProcessorChain {
	pc := &ProcessorChain{
		processors: make(map[string]Processor),
	}
	pc.registerDefaults()
	return pc
}

func (pc *ProcessorChain) registerDefaults() {
	pc.Register(&TrimProcessor{})
	pc.Register(&DropEmptyProcessor{})
	pc.Register(&DropCommentsProcessor{})
	pc.Register(&DropBannerProcessor{})
	pc.Register(&SplitLinesProcessor{})
	pc.Register(&VersionFactsProcessor{})
}

// Register adds a processor, replacing any processor of the same name.
func (pc *ProcessorChain) Register(p Processor) {
	pc.processors[p.Name()] = p
}

// Has reports whether every name is registered.
func (pc *ProcessorChain) Has(names ...string) error {
	for _, name := range names {
		if _, exists := pc.processors[name]; !exists {
			return fmt.Errorf("processor %q not registered", name)
		}
	}
	return nil
}

func (pc *ProcessorChain) Process(lines []string, processorNames ...string) ([]string, error) {
	if err := pc.Has(processorNames...); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return lines, nil
	}
	result := lines
	for _, name := range processorNames {
		var err error
		result, err = pc.processors[name].Process(result)
		if err != nil {
			return nil, fmt.Errorf("%s processor failed: %w", name, err)
		}
	}
	return result, nil
}

// Parse runs the named processors and shapes the result.
func (pc *ProcessorChain) Parse(lines []string, shape Shape, processorNames ...string) (any, error) {
	out, err := pc.Process(lines, processorNames...)
	if err != nil {
		return nil, err
	}
	switch shape {
	case ShapeKeyValue:
		return parseKeyValueLines(out), nil
	case ShapeTable:
		return parseTable(out), nil
	case ShapeLines:
		if out == nil {
			out = []string{}
		}
		return out, nil
	case ShapeText:
		return strings.Join(out, "\n"), nil
	default:
		return nil, fmt.Errorf("invalid shape: %q", shape)
	}
}

// SplitOutput splits raw output into lines, dropping carriage returns.
func SplitOutput(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// TrimProcessor trims whitespace from each line in the input.
type TrimProcessor struct{}

func (p *TrimProcessor) Name() string { return ProcessorTypeTrim }
func (p *TrimProcessor) Process(lines []string) ([]string, error) {
	trimmed := make([]string, len(lines))
	for i, line := range lines {
		trimmed[i] = strings.TrimSpace(line)
	}
	return trimmed, nil
}

type DropEmptyProcessor struct{}

func (p *DropEmptyProcessor) Name() string { return ProcessorTypeDropEmpty }
func (p *DropEmptyProcessor) Process(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// DropCommentsProcessor removes "!" and "#" comment lines of device configs.
type DropCommentsProcessor struct{}

func (p *DropCommentsProcessor) Name() string { return ProcessorTypeDropComments }
func (p *DropCommentsProcessor) Process(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "!") || strings.HasPrefix(t, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// DropBannerProcessor drops leading lines until the first line that looks like
// a table header or a key/value pair, e.g. "Building configuration..." noise.
type DropBannerProcessor struct{}

func (p *DropBannerProcessor) Name() string { return ProcessorTypeDropBanner }
func (p *DropBannerProcessor) Process(lines []string) ([]string, error) {
	for i, line := range lines {
		if strings.Contains(line, ":") || len(strings.Fields(line)) > 1 {
			return lines[i:], nil
		}
	}
	return []string{}, nil
}

// SplitLinesProcessor splits each line into whitespace separated fields.
type SplitLinesProcessor struct{}

func (p *SplitLinesProcessor) Name() string { return ProcessorTypeSplitLines }
func (p *SplitLinesProcessor) Process(lines []string) ([]string, error) {
	result := make([]string, 0, len(lines)*3)
	for _, line := range lines {
		result = append(result, strings.Fields(line)...)
	}
	return result, nil
}

// versionFacts is tried in order on every line. A matching entry with last
// set ends the line so that "Kernel uptime is" never yields a hostname.
var versionFacts = []struct {
	key  string
	re   *regexp.Regexp
	last bool
}{
	{key: "uptime", re: regexp.MustCompile(`^Kernel uptime is (.+)$`), last: true},
	{key: "hostname", re: regexp.MustCompile(`^Device name:\s*(\S+)`)},
	{key: "hostname", re: regexp.MustCompile(`^(\S+) uptime is `)},
	{key: "uptime", re: regexp.MustCompile(`^\S+ uptime is (.+)$`)},
	{key: "os_version", re: regexp.MustCompile(`(?i)^Cisco IOS.*, Version ([^ ,]+)`)},
	{key: "os_version", re: regexp.MustCompile(`(?i)^NXOS: version (\S+)`)},
	{key: "model", re: regexp.MustCompile(`(?i)^cisco (Nexus\S* .*) Chassis`)},
	{key: "model", re: regexp.MustCompile(`(?i)^cisco (\S+) \(.*\) (?:processor|with)`)},
	{key: "serial_number", re: regexp.MustCompile(`(?i)^Processor board ID (\S+)`)},
}

// VersionFactsProcessor rewrites the free text of Cisco "show version" into
// "key: value" lines. The first match of a key wins; other lines are dropped.
type VersionFactsProcessor struct{}

func (p *VersionFactsProcessor) Name() string { return ProcessorTypeVersionFacts }
func (p *VersionFactsProcessor) Process(lines []string) ([]string, error) {
	seen := make(map[string]bool, len(versionFacts))
	out := make([]string, 0, len(versionFacts))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, f := range versionFacts {
			m := f.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if !seen[f.key] {
				seen[f.key] = true
				out = append(out, f.key+": "+strings.TrimSpace(m[1]))
			}
			if f.last {
				break
			}
		}
	}
	return out, nil
}

// parseKeyValueLines keeps "key: value" lines. Lines without a key, such as
// ":: banner ::" separators, are skipped.
func parseKeyValueLines(lines []string) map[string]any {
	kv := make(map[string]any)

	for _, line := range lines {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		kv[normalizeKey(key)] = value
	}
	return kv
}

// parseTable reads a whitespace aligned table. Extra trailing fields are
// joined into the last column; short rows leave the remaining columns empty.
func parseTable(lines []string) []map[string]any {
	rows := []map[string]any{}
	if len(lines) == 0 {
		return rows
	}
	header := strings.Fields(lines[0])
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = normalizeKey(h)
	}
	if len(cols) == 0 {
		return rows
	}
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 || isRule(fields) {
			continue
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			switch {
			case i >= len(fields):
				row[c] = ""
			case i == len(cols)-1:
				row[c] = strings.Join(fields[i:], " ")
			default:
				row[c] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// isRule reports lines like "---- -----" that separate header and body.
func isRule(fields []string) bool {
	for _, f := range fields {
		if strings.Trim(f, "-=+") != "" {
			return false
		}
	}
	return true
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(k)
}
