package tether

import (
	"encoding/json"
	"fmt"
)

// Tool describes a callable remote operation as advertised by the server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ToolResult is the outcome of a remote tool invocation. IsError indicates a
// tool-reported domain failure; infrastructure failures surface as a
// ClassifiedError instead.
type ToolResult struct {
	Content []ContentBlock
	IsError bool
}

// UnmarshalJSON decodes the wire form of a tool result, mapping the content
// array onto typed blocks. Unrecognized block types are kept as text so no
// payload is silently lost.
func (r *ToolResult) UnmarshalJSON(b []byte) error {
	var wire struct {
		Content []json.RawMessage `json:"content"`
		IsError bool              `json:"isError"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	r.IsError = wire.IsError
	r.Content = r.Content[:0]
	for _, raw := range wire.Content {
		block, err := unmarshalContentBlock(raw)
		if err != nil {
			return err
		}
		r.Content = append(r.Content, block)
	}
	return nil
}

// Text concatenates the text blocks of the result.
func (r *ToolResult) Text() string {
	var out string
	for _, b := range r.Content {
		if t, ok := b.(TextBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

// ContentBlock is a sealed interface representing a block of result content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ImageBlock contains base64-decoded image data.
type ImageBlock struct {
	Data     []byte
	MimeType string
}

func (ImageBlock) contentBlock() {}

func unmarshalContentBlock(raw json.RawMessage) (ContentBlock, error) {
	var head struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Data     []byte `json:"data"`
		MimeType string `json:"mimeType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("content block: %w", err)
	}
	switch head.Type {
	case "image":
		return ImageBlock{Data: head.Data, MimeType: head.MimeType}, nil
	case "text":
		return TextBlock{Text: head.Text}, nil
	default:
		// Resource and future block types degrade to their raw JSON as text.
		if head.Text != "" {
			return TextBlock{Text: head.Text}, nil
		}
		return TextBlock{Text: string(raw)}, nil
	}
}

// Interface compliance checks.
var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ImageBlock{}
)
