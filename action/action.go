// Package action executes typed page actions. The Executor is the single
// error-normalization boundary of the core: selector errors, page
// failures and unknown verbs all come back as an error Result, never as
// a Go error crossing the workflow boundary.
package action

// Verb names one supported page action.
type Verb string

const (
	VerbGoto     Verb = "goto"
	VerbClick    Verb = "click"
	VerbInput    Verb = "input"
	VerbSelect   Verb = "select"
	VerbRadio    Verb = "radio"
	VerbCheckbox Verb = "checkbox"
	VerbWait     Verb = "wait"

	VerbExtractText      Verb = "extract_text"
	VerbExtractHTML      Verb = "extract_html"
	VerbExtractAttribute Verb = "extract_attribute"
	VerbExtractURL       Verb = "extract_url"
	VerbExtractMultiple  Verb = "extract_multiple"
)

// RequiresSelector reports whether the verb addresses a page element.
// goto and extract_url act on the page as a whole.
func (v Verb) RequiresSelector() bool {
	return v != VerbGoto && v != VerbExtractURL
}

// Extraction content kinds for extract_attribute and extract_multiple.
const (
	ExtractText      = "text"
	ExtractHTML      = "html"
	ExtractAttribute = "attribute"
	ExtractMarkdown  = "markdown"
)

// Descriptor is one workflow instruction. It is consumed exactly once
// and never mutated.
type Descriptor struct {
	Verb     Verb   `json:"verb"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`

	// Attribute names the attribute read by extract_attribute and by
	// extract_multiple with ExtractType "attribute". Default: "value".
	Attribute string `json:"attribute,omitempty"`

	// ExtractType picks the content kind for extract_multiple:
	// text (default), html, attribute, or markdown.
	ExtractType string `json:"extract_type,omitempty"`
}

// Status of one executed action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the immutable outcome record of one executed action.
type Result struct {
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	URL     string   `json:"url,omitempty"`
	Text    string   `json:"text,omitempty"`
	List    []string `json:"list,omitempty"`
}

// OK reports whether the action succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

func success(message string) Result {
	return Result{Status: StatusSuccess, Message: message}
}

func failure(err error) Result {
	return Result{Status: StatusError, Message: err.Error()}
}
