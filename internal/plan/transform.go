package plan

import (
	"strconv"
	"strings"
)

// resourceTypes maps lower-cased type names and common aliases onto the four
// canonical types.
var resourceTypes = map[string]ResourceType{
	"youtube":   ResourceYouTube,
	"video":     ResourceYouTube,
	"course":    ResourceCourse,
	"mooc":      ResourceCourse,
	"practice":  ResourcePractice,
	"exercise":  ResourcePractice,
	"project":   ResourcePractice,
	"article":   ResourceArticle,
	"reading":   ResourceArticle,
	"docs":      ResourceArticle,
	"book":      ResourceArticle,
	"tutorial":  ResourceArticle,
	"blog":      ResourceArticle,
	"paper":     ResourceArticle,
	"guide":     ResourceArticle,
}

// NormalizeResourceType maps any engine type name onto a ResourceType.
// Unknown names become ResourceArticle.
func NormalizeResourceType(name string) ResourceType {
	if t, ok := resourceTypes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}

	return ResourceArticle
}

// transform builds a Record from the engine's learningData, filling every
// missing field with a fallback string.
func transform(data map[string]any) Record {
	rec := Record{
		Email: firstText(data, "", "email"),
		ProfileSummary: firstText(
			data, FallbackProfileSummary,
			"profile_summary", "profileSummary", "summary",
		),
		LearningPath: []Module{},
		ActionPlan:   []ActionStep{},
		ProTips:      []string{},
	}

	if rec.Email == "" {
		if v, ok := path(data, "profile", "email"); ok {
			rec.Email = text(v)
		}
	}

	if v, ok := firstField(data, "learning_path", "learningPath",
		"modules"); ok {

		rec.LearningPath = transformModules(v)
	}

	if v, ok := firstField(data, "action_plan", "actionPlan"); ok {
		rec.ActionPlan = transformActions(v)
	}

	if v, ok := firstField(data, "pro_tips", "proTips", "tips"); ok {
		rec.ProTips = stringItems(v)
	}

	return rec
}

// transformModules converts the module list. Non-object entries are
// skipped.
func transformModules(v any) []Module {
	items, _ := v.([]any)

	modules := make([]Module, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		number := intField(obj, len(modules)+1, "module_number",
			"number", "moduleNumber")

		var resources []Resource
		if rv, ok := obj["resources"]; ok {
			resources = transformResources(rv)
		}
		if resources == nil {
			resources = []Resource{}
		}

		modules = append(modules, Module{
			Number: number,
			Title: firstText(obj, FallbackModuleTitle,
				"title", "module_title", "name"),
			Duration: firstText(obj, FallbackDuration,
				"duration", "timeframe"),
			Objective: firstText(obj, FallbackObjective,
				"objective", "goal", "description"),
			Resources: resources,
		})
	}

	return modules
}

// transformResources converts a module's resource list.
func transformResources(v any) []Resource {
	items, _ := v.([]any)

	resources := make([]Resource, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		resources = append(resources, Resource{
			Type: NormalizeResourceType(text(obj["type"])),
			Name: firstText(obj, FallbackResourceName,
				"name", "title"),
			Link: firstText(obj, FallbackLink, "link", "url"),
			DurationEstimate: firstText(obj, FallbackEstimate,
				"duration_estimate", "duration", "estimated_time"),
			Rationale: firstText(obj, FallbackRationale,
				"rationale", "why", "description"),
		})
	}

	return resources
}

// transformActions accepts a single string, a list of strings or a list of
// step objects.
func transformActions(v any) []ActionStep {
	switch t := v.(type) {
	case string:
		action := strings.TrimSpace(t)
		if action == "" {
			return []ActionStep{}
		}

		return []ActionStep{{
			Step: 1, Action: action, Timeline: FallbackTimeline,
		}}

	case []any:
		steps := make([]ActionStep, 0, len(t))
		for _, item := range t {
			next := len(steps) + 1

			switch it := item.(type) {
			case string:
				action := strings.TrimSpace(it)
				if action == "" {
					continue
				}

				steps = append(steps, ActionStep{
					Step:     next,
					Action:   action,
					Timeline: FallbackTimeline,
				})

			case map[string]any:
				steps = append(steps, ActionStep{
					Step: intField(it, next, "step", "number"),
					Action: firstText(it, FallbackAction,
						"action", "task", "description"),
					Timeline: firstText(it, FallbackTimeline,
						"timeline", "when", "duration"),
				})
			}
		}

		return steps

	default:
		return []ActionStep{}
	}
}

// stringItems keeps the non-blank scalar entries of a list.
func stringItems(v any) []string {
	items, _ := v.([]any)

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}

	return out
}

// intField reads the first numeric (or numeric string) field among keys,
// returning fallback when none is a positive integer.
func intField(obj map[string]any, fallback int, keys ...string) int {
	for _, k := range keys {
		switch t := obj[k].(type) {
		case float64:
			if t >= 1 && t == float64(int(t)) {
				return int(t)
			}

		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err == nil && n >= 1 {
				return n
			}
		}
	}

	return fallback
}
