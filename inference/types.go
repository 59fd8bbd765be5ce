package inference

import "strings"

// Entity is a recognized medical term.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Start      *int    `json:"start,omitempty"`
	End        *int    `json:"end,omitempty"`
}

// ImageFinding is one classification label for an image.
type ImageFinding struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// SessionAnalysis bundles the results of AnalyzeSession. Fields are nil when
// the matching input was not supplied.
type SessionAnalysis struct {
	Entities      []Entity       `json:"entities,omitempty"`
	Summary       *string        `json:"summary,omitempty"`
	ImageAnalysis []ImageFinding `json:"imageAnalysis,omitempty"`
}

var descriptions = map[string]string{
	"normal":    "No abnormalities detected in the image.",
	"abnormal":  "Potential abnormalities detected. Further examination recommended.",
	"fracture":  "Possible bone fracture detected. Immediate medical attention required.",
	"pneumonia": "Signs consistent with pneumonia. Antibiotic treatment may be necessary.",
	"tumor":     "Suspicious mass detected. Biopsy and further testing recommended.",
}

const fallbackDescription = "Analysis result requires professional medical interpretation."

// Describe returns clinical context for a classifier label.
func Describe(label string) string {
	if d, ok := descriptions[strings.ToLower(label)]; ok {
		return d
	}
	return fallbackDescription
}

// upstream payloads

type nerItem struct {
	Word        string  `json:"word"`
	Entity      string  `json:"entity"`
	EntityGroup string  `json:"entity_group"`
	Score       float64 `json:"score"`
	Start       *int    `json:"start"`
	End         *int    `json:"end"`
}

type classItem struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type summaryItem struct {
	SummaryText string `json:"summary_text"`
}

type summaryRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters summaryParameters `json:"parameters"`
}

type summaryParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}
