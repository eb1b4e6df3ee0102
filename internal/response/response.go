// Package response adapts whatever content a tool invocation produced -
// a bare string, a single content part, or a list of parts - into the
// canonical function-response envelope the scheduler hands back to a
// caller. The Part type follows the same closed-sum-type idiom as the
// rest of the module: concrete variants carry only the fields that make
// sense for them, and callers switch on the type, not a discriminator
// field.
package response

import "fmt"

// Part is one piece of tool output content.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// BinaryPart is inline or referenced binary content, e.g. an image a tool
// captured.
type BinaryPart struct {
	MimeType string
	Data     []byte
	// Inline distinguishes data embedded directly in the part from data
	// referenced by a URI held in Data.
	Inline bool
}

func (BinaryPart) isPart() {}

// GenericPart is content that is neither plain text nor binary - a
// structured or empty part a tool returned that the adapter still needs
// to pass through.
type GenericPart struct{}

func (GenericPart) isPart() {}

// FunctionResponsePart is the envelope wrapping the textual summary of a
// tool's result, always the first Part of a ConvertToFunctionResponse
// result.
type FunctionResponsePart struct {
	Name   string
	ID     string
	Output string
}

func (FunctionResponsePart) isPart() {}

// Content is the union of shapes a tool invocation may hand back:
// a plain string, a single Part, or a list of Parts.
type Content interface {
	isContent()
}

// StringContent wraps a plain-text result.
type StringContent string

func (StringContent) isContent() {}

// PartContent wraps a single Part result.
type PartContent struct{ Part Part }

func (PartContent) isContent() {}

// PartsContent wraps a list-of-Parts result.
type PartsContent struct{ Parts []Part }

func (PartsContent) isContent() {}

const succeededMessage = "Tool execution succeeded."

// ConvertToFunctionResponse builds the Part list returned to a caller for
// one completed tool call. The first element is always a
// FunctionResponsePart carrying a short textual summary. A single binary
// part follows it; for a list that is not a lone text or binary part,
// every part of the list follows it. A single generic part that was not
// passed in a list is not appended.
func ConvertToFunctionResponse(toolName, callID string, content Content) []Part {
	envelope := func(output string) FunctionResponsePart {
		return FunctionResponsePart{Name: toolName, ID: callID, Output: output}
	}

	switch c := content.(type) {
	case StringContent:
		return []Part{envelope(string(c))}

	case PartContent:
		switch p := c.Part.(type) {
		case TextPart:
			return []Part{envelope(p.Text)}
		case BinaryPart:
			return []Part{envelope(binaryMessage(p.MimeType)), p}
		default:
			return []Part{envelope(succeededMessage)}
		}

	case PartsContent:
		if len(c.Parts) == 0 {
			return []Part{envelope(succeededMessage)}
		}
		if len(c.Parts) == 1 {
			switch p := c.Parts[0].(type) {
			case TextPart:
				return []Part{envelope(p.Text)}
			case BinaryPart:
				return []Part{envelope(binaryMessage(p.MimeType)), p}
			default:
				out := []Part{envelope(succeededMessage)}
				return append(out, c.Parts...)
			}
		}
		out := []Part{envelope(succeededMessage)}
		return append(out, c.Parts...)

	default:
		return []Part{envelope(succeededMessage)}
	}
}

func binaryMessage(mimeType string) string {
	return fmt.Sprintf("Binary content of type %s was processed.", mimeType)
}
