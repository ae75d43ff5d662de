package plan

import "time"

// ResourceType classifies a learning resource.
type ResourceType string

const (
	// ResourceYouTube is a video.
	ResourceYouTube ResourceType = "YouTube"

	// ResourceCourse is a structured course.
	ResourceCourse ResourceType = "Course"

	// ResourcePractice is an exercise or project.
	ResourcePractice ResourceType = "Practice"

	// ResourceArticle is reading material, and the default for unknown
	// types.
	ResourceArticle ResourceType = "Article"
)

// Resource is one item to study within a module.
type Resource struct {
	Type             ResourceType `json:"type"`
	Name             string       `json:"name"`
	Link             string       `json:"link"`
	DurationEstimate string       `json:"duration_estimate"`
	Rationale        string       `json:"rationale"`
}

// Module is one step of the learning path.
type Module struct {
	Number    int        `json:"module_number"`
	Title     string     `json:"module_title"`
	Duration  string     `json:"duration"`
	Objective string     `json:"objective"`
	Resources []Resource `json:"resources"`
}

// ActionStep is one entry of the action plan.
type ActionStep struct {
	Step     int    `json:"step"`
	Action   string `json:"action"`
	Timeline string `json:"timeline"`
}

// Record is a learning plan as stored and served to pollers.
type Record struct {
	Email          string       `json:"email"`
	ProfileSummary string       `json:"profile_summary"`
	LearningPath   []Module     `json:"learning_path"`
	ActionPlan     []ActionStep `json:"action_plan"`
	ProTips        []string     `json:"pro_tips"`
	RequestID      string       `json:"request_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

// SubmitResult is the workflow engine's reply to a submission, passed
// through untouched.
type SubmitResult struct {
	// RequestID is the id the engine will echo back in its callback.
	RequestID string

	// StatusCode is the engine's HTTP status.
	StatusCode int

	// ContentType is the engine's Content-Type header.
	ContentType string

	// Body is the engine's response body.
	Body []byte
}

// CallbackResult acknowledges a stored plan.
type CallbackResult struct {
	Success      bool   `json:"success"`
	DataID       string `json:"dataId"`
	ModulesCount int    `json:"modulesCount"`
}

// Fallback strings substituted for fields the engine left out, so a plan
// always renders.
const (
	FallbackProfileSummary = "Your personalized learning plan."
	FallbackModuleTitle    = "Untitled Module"
	FallbackDuration       = "Self-paced"
	FallbackObjective      = "Build practical skills in this area."
	FallbackResourceName   = "Untitled Resource"
	FallbackLink           = "#"
	FallbackEstimate       = "Varies"
	FallbackRationale      = "Recommended for this module."
	FallbackAction         = "Review your learning path."
	FallbackTimeline       = "Ongoing"
)
