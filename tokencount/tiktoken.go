// Package tokencount provides the shared ports.TokenCounter used by
// fetch_node_texts and manage_context_budget to enforce prompt-token
// budgets deterministically.
package tokencount

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens with a tiktoken-go encoding, constructed once and
// reused across calls.
type Tiktoken struct {
	encodingName string
	encoding     *tiktoken.Tiktoken
}

// NewTiktokenWithCL100KBase builds a Tiktoken counter using the CL100K_BASE
// encoding, the default for modern chat models.
func NewTiktokenWithCL100KBase() (*Tiktoken, error) {
	return NewTiktoken(tiktoken.MODEL_CL100K_BASE)
}

// NewTiktoken builds a Tiktoken counter for the named encoding.
func NewTiktoken(encodingName string) (*Tiktoken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{encodingName: encodingName, encoding: encoding}, nil
}

// Count deterministically counts the tokens text would occupy in a prompt.
// Satisfies ports.TokenCounter.
func (t *Tiktoken) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}
