package model

// ErrorType classifies a single typing error.
type ErrorType string

const (
	ErrorMissing ErrorType = "missing"
	ErrorExtra   ErrorType = "extra"
)

// WordPosition locates an error relative to the words of the target text.
type WordPosition struct {
	WordNumber     int     `json:"wordNumber"`
	WordPercentage float64 `json:"wordPercentage"`
}

// ErrorContext is the target text surrounding an error.
type ErrorContext struct {
	Before       string       `json:"before"`
	After        string       `json:"after"`
	WordPosition WordPosition `json:"wordPosition"`
}

// DiffError is one contiguous error span.
type DiffError struct {
	Type     ErrorType    `json:"type"`
	Position int          `json:"position"`
	Expected string       `json:"expected"`
	Actual   string       `json:"actual"`
	Context  ErrorContext `json:"context"`
}

// ErrorDistribution counts errors per third of the target text.
type ErrorDistribution struct {
	Beginning int `json:"beginning"`
	Middle    int `json:"middle"`
	End       int `json:"end"`
}

// AnalysisContext describes the analysis as a whole.
type AnalysisContext struct {
	TotalWords        int               `json:"totalWords"`
	ErrorDistribution ErrorDistribution `json:"errorDistribution"`
	OverallAccuracy   float64           `json:"overallAccuracy"`
}

// DifferenceAnalysis is the classified diff between target text and input.
type DifferenceAnalysis struct {
	CorrectCharacters   int             `json:"correctCharacters"`
	IncorrectCharacters int             `json:"incorrectCharacters"`
	MissingCharacters   int             `json:"missingCharacters"`
	ExtraCharacters     int             `json:"extraCharacters"`
	Errors              []DiffError     `json:"errors"`
	Accuracy            float64         `json:"accuracy"`
	Context             AnalysisContext `json:"context"`
}

// Metrics are the derived speed and accuracy figures for a session.
type Metrics struct {
	WPM       float64 `json:"wpm"`
	NetWPM    float64 `json:"netWpm"`
	Accuracy  float64 `json:"accuracy"`
	Duration  float64 `json:"duration"`
	ErrorRate float64 `json:"errorRate"`
}
