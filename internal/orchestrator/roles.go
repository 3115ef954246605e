// Package orchestrator drives the analyze/plan/code/test/review sequence
// over a task, per spec.md §4.8. Roles are plain values rather than an
// inheritance hierarchy: a capability set, a prompt template, and a
// relevance predicate closure — grounded on the teacher's campaign package
// (internal/campaign/orchestrator_phases.go's phase/task sequencing shape),
// generalized from a Mangle-driven phase graph to a fixed five-beat
// pipeline and from class-based task types to role values.
package orchestrator

import (
	"fmt"
	"strings"
)

// Capability is one thing a Role can be asked to do.
type Capability string

const (
	CapAnalyze Capability = "analyze"
	CapPlan    Capability = "plan"
	CapCode    Capability = "code"
	CapTest    Capability = "test"
	CapReview  Capability = "review"
)

// Role is a value: capabilities, a prompt template, and a relevance
// predicate over the shared message log. There is no Role interface or
// subtype — every role in the pipeline is one of these structs, and the
// pipeline dispatches on Capabilities rather than on a type switch.
type Role struct {
	Name           string
	Capabilities   map[Capability]bool
	PromptTemplate string
	// Relevant reports whether msg should be included in this role's
	// memory slice for the given task keywords. Substring match on task
	// keywords plus role-specific tags, per spec.md §4.8.
	Relevant func(msg Message, taskKeywords []string) bool
}

// Can reports whether the role supports cap.
func (r Role) Can(cap Capability) bool {
	return r.Capabilities[cap]
}

// BuildPrompt renders the role's template with the task description and a
// bounded memory slice already selected by the caller (see memory.go).
func (r Role) BuildPrompt(taskDescription string, memory []Message, extra string) string {
	var b strings.Builder
	b.WriteString(r.PromptTemplate)
	b.WriteString("\n\nTask:\n")
	b.WriteString(taskDescription)
	if len(memory) > 0 {
		b.WriteString("\n\nRelevant prior context:\n")
		for _, m := range memory {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", m.RoleName, m.Phase, truncate(m.Content, 500))
		}
	}
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func defaultRelevant(tags ...string) func(Message, []string) bool {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	return func(msg Message, taskKeywords []string) bool {
		for _, t := range msg.Tags {
			if tagSet[t] {
				return true
			}
		}
		lower := strings.ToLower(msg.Content)
		for _, kw := range taskKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
}

// Planner analyzes the task and produces the stepwise plan.
func Planner() Role {
	return Role{
		Name:         "planner",
		Capabilities: map[Capability]bool{CapAnalyze: true, CapPlan: true},
		PromptTemplate: "You are the Planner. Given a task description, produce a complexity " +
			"tag (XS, S, M, L, XL), a proposed stack tag, and a draft file manifest sketch. " +
			"When asked to plan, produce a stepwise plan as structured text suitable for a " +
			"human approver to read.",
		Relevant: defaultRelevant("plan", "analysis"),
	}
}

// Implementer generates the complete file manifest for the declared stack.
func Implementer() Role {
	return Role{
		Name:         "implementer",
		Capabilities: map[Capability]bool{CapCode: true},
		PromptTemplate: "You are the Implementer. Given the accepted plan, produce a complete " +
			"FILE-manifest formatted response for the declared stack. Follow every constraint " +
			"token and stack rule named in the task.",
		Relevant: defaultRelevant("code", "plan", "revision"),
	}
}

// Tester produces a stack-appropriate test manifest against the accepted
// code manifest.
func Tester() Role {
	return Role{
		Name:         "tester",
		Capabilities: map[Capability]bool{CapTest: true},
		PromptTemplate: "You are the Tester. Given the accepted code manifest, produce a " +
			"stack-appropriate test manifest in the same FILE-manifest format.",
		Relevant: defaultRelevant("code", "test"),
	}
}

// Reviewer emits an approved/changes_required verdict, plus optional
// revision notes appended to the next Implementer round.
func Reviewer() Role {
	return Role{
		Name:         "reviewer",
		Capabilities: map[Capability]bool{CapReview: true},
		PromptTemplate: "You are the Reviewer. Given the code and test manifests, respond with " +
			"a verdict, \"approved\" or \"changes_required\", plus optional revision notes, " +
			"in the JSON shape the request specifies.",
		Relevant: defaultRelevant("code", "test", "review"),
	}
}

// HumanReviewer is the optional fifth role from spec.md §9's Open
// Questions: a review capability that may return needs_human_decision
// instead of a verdict, surfaced by the executor as a sub-state of
// awaiting_approval (ApprovalReason = "human_review") rather than a new
// top-level run state.
func HumanReviewer() Role {
	return Role{
		Name:         "human_reviewer",
		Capabilities: map[Capability]bool{CapReview: true},
		PromptTemplate: "You are the Human Reviewer gate. If the change touches anything outside " +
			"the Reviewer's competence (security-sensitive paths, irreversible data operations), " +
			"respond \"needs_human_decision\" with a one-line reason instead of a verdict.",
		Relevant: defaultRelevant("review", "human_review"),
	}
}
