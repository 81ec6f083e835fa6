// Package features implements the editor-facing language features built
// on top of a project's assembled model: diagnostics translation,
// hover, go-to-definition, and document symbols. Each is a small,
// independently testable function rather than a stateful handler, kept
// that way so internal/lspserver can wire them straight into its
// method dispatch without an extra adapter layer.
package features

import (
	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"go.lsp.dev/protocol"
)

// severityRank orders Severity from least to most severe, matching
// initializationOptions.diagnostics.minimumSeverity's closed set
// {NOTE,WARNING,DANGER,ERROR}.
var severityRank = map[assembly.Severity]int{
	assembly.SeverityNote:    0,
	assembly.SeverityWarning: 1,
	assembly.SeverityDanger:  2,
	assembly.SeverityError:   3,
}

// Diagnostics translates every ValidationEvent attributable to path,
// whose severity is at least minimumSeverity, into an LSP Diagnostic.
// Only events whose location names path are included; an event in path
// with no line is anchored to line 0, and events that name no file are
// left out.
func Diagnostics(path string, result *assembly.ValidatedResult, minimumSeverity assembly.Severity) []protocol.Diagnostic {
	if result == nil {
		return nil
	}
	threshold := severityRank[minimumSeverity]
	var out []protocol.Diagnostic
	for _, ev := range result.Events {
		if ev.Location.File != path {
			continue
		}
		if severityRank[ev.Severity] < threshold {
			continue
		}
		out = append(out, protocol.Diagnostic{
			Range:    eventRange(ev),
			Severity: severity(ev.Severity),
			Source:   "smithy",
			Message:  ev.Message,
		})
	}
	return out
}

func eventRange(ev assembly.ValidationEvent) protocol.Range {
	line := ev.Location.Line
	if line > 0 {
		line--
	}
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line)},
		End:   protocol.Position{Line: uint32(line), Character: 1 << 10},
	}
}

func severity(s assembly.Severity) protocol.DiagnosticSeverity {
	switch s {
	case assembly.SeverityError:
		return protocol.DiagnosticSeverityError
	case assembly.SeverityDanger:
		return protocol.DiagnosticSeverityWarning
	case assembly.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}
