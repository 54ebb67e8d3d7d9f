package translator

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Selector decides whether a paragraph is sent to the backend.
type Selector interface {
	Select(index int, paragraph string) (bool, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(index int, paragraph string) (bool, error)

// Select calls f.
func (f SelectorFunc) Select(index int, paragraph string) (bool, error) {
	return f(index, paragraph)
}

// SelectAll accepts every paragraph.
var SelectAll Selector = SelectorFunc(func(int, string) (bool, error) { return true, nil })

// SelectNone rejects every paragraph.
var SelectNone Selector = SelectorFunc(func(int, string) (bool, error) { return false, nil })

const rule = "----------------------------------------------------------------------"

// InteractiveSelector shows each paragraph and asks the operator. Only an
// answer of "y" (any case) accepts; end of input rejects the rest.
type InteractiveSelector struct {
	in     *bufio.Reader
	out    io.Writer
	header string
}

// NewInteractiveSelector reads answers from in and writes prompts to out.
// header is printed above each paragraph, e.g. "en -> es".
func NewInteractiveSelector(in io.Reader, out io.Writer, header string) *InteractiveSelector {
	return &InteractiveSelector{in: bufio.NewReader(in), out: out, header: header}
}

// Select implements Selector.
func (s *InteractiveSelector) Select(index int, paragraph string) (bool, error) {
	fmt.Fprintf(s.out, "%s\nParagraph %d (%s):\n%s\n%s\n%s\n", rule, index+1, s.header, rule, paragraph, rule)
	fmt.Fprint(s.out, "Do you want to translate this paragraph? (y/n): ")

	line, err := s.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	if err == io.EOF && line == "" {
		fmt.Fprintln(s.out)
		return false, nil
	}
	return strings.ToLower(strings.TrimSpace(line)) == "y", nil
}
