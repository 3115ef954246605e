package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mgxlabs/orchestrator/internal/cache"
	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/mgxlabs/orchestrator/internal/guardrails"
	"github.com/mgxlabs/orchestrator/internal/llm"
	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/manifest"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// relevantMemorySlots is the N in spec.md §4.8's "N most-relevant prior
// entries (default N=5)". This is distinct from config's memory_size,
// which bounds the overall log's retention, not any one role's per-call
// slice.
const relevantMemorySlots = 5

// Outcome is the closed set of terminal pipeline results.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeNeedsInfo          Outcome = "needs_info"
	OutcomeNeedsHumanDecision Outcome = "needs_human_decision"
)

// Pipeline runs the analyze/plan/code/test/review sequence over a task.
// One Pipeline is safely reused across tasks; per-task state lives in the
// Memory it is given.
type Pipeline struct {
	client   llm.Client
	cache    cache.Cache
	registry *guardrails.Registry

	planner       Role
	implementer   Role
	tester        Role
	reviewer      Role
	humanReviewer Role
	maxRounds     int
	maxRevision   int
}

// New builds a Pipeline bound to client, resp cache, and guardrail
// registry, with bounds taken from cfg.
func New(client llm.Client, respCache cache.Cache, registry *guardrails.Registry, cfg config.ExecutionConfig) *Pipeline {
	return &Pipeline{
		client:        client,
		cache:         respCache,
		registry:      registry,
		planner:       Planner(),
		implementer:   Implementer(),
		tester:        Tester(),
		reviewer:      Reviewer(),
		humanReviewer: HumanReviewer(),
		maxRounds:     cfg.MaxRounds,
		maxRevision:   cfg.MaxRevisionRounds,
	}
}

type analyzeOutput struct {
	Complexity   string   `json:"complexity"`
	Stack        string   `json:"stack"`
	ManifestHint []string `json:"manifest_hint"`
}

type reviewOutput struct {
	Verdict string `json:"verdict"`
	Notes   string `json:"notes"`
}

// Analyze runs pipeline steps 1-2 (spec.md §4.8): the Planner proposes a
// complexity tag, stack, and manifest sketch (memoized via the response
// cache keyed on task+stack hint+model), then expands that into a
// stepwise plan. The returned Plan is the artifact an approver reviews;
// Analyze never touches the approval gate itself (§4.9 owns that).
func (p *Pipeline) Analyze(ctx context.Context, task *types.Task, mem *Memory) (*types.Plan, types.TokenUsage, error) {
	log := logging.Get(logging.CategoryPlanner)
	var usage types.TokenUsage
	keywords := taskKeywords(task.Description)

	sketchReq := llm.Request{
		SystemPrompt: p.planner.BuildPrompt(task.Description, mem.Relevant(p.planner, keywords, relevantMemorySlots), ""),
		Prompt: fmt.Sprintf("Stack hint: %s\nRespond with JSON: {\"complexity\":\"XS|S|M|L|XL\",\"stack\":\"<tag>\",\"manifest_hint\":[\"path\", ...]}",
			task.TargetStack),
		JSONSchema: `{"type":"object","properties":{"complexity":{"type":"string"},"stack":{"type":"string"},"manifest_hint":{"type":"array"}}}`,
	}
	sketchResp, err := p.callCached(ctx, CapAnalyze, task.ID, sketchReq)
	if err != nil {
		log.Error("analyze sketch call failed: %v", err)
		return nil, usage, mgxerr.Wrap(types.ErrLLM, "planner analyze call failed", err)
	}
	usage.Add(types.TokenUsage{PromptTokens: sketchResp.Usage.PromptTokens, CompletionTokens: sketchResp.Usage.CompletionTokens})

	var sketch analyzeOutput
	if err := json.Unmarshal([]byte(sketchResp.Text), &sketch); err != nil {
		log.Warn("analyze sketch response was not valid JSON, falling back to raw stack hint: %v", err)
		sketch = analyzeOutput{Complexity: "M", Stack: task.TargetStack}
	}
	mem.Append(Message{RoleName: p.planner.Name, Phase: "analyze", Content: sketchResp.Text, Tags: []string{"analysis"}, CreatedAt: time.Now().UTC()})

	planReq := llm.Request{
		SystemPrompt: p.planner.BuildPrompt(task.Description, mem.Relevant(p.planner, keywords, relevantMemorySlots), ""),
		Prompt:       fmt.Sprintf("Produce a stepwise plan for stack %s, complexity %s.", sketch.Stack, sketch.Complexity),
	}
	planResp, err := p.callCached(ctx, CapPlan, task.ID, planReq)
	if err != nil {
		log.Error("plan call failed: %v", err)
		return nil, usage, mgxerr.Wrap(types.ErrLLM, "planner plan call failed", err)
	}
	usage.Add(types.TokenUsage{PromptTokens: planResp.Usage.PromptTokens, CompletionTokens: planResp.Usage.CompletionTokens})
	mem.Append(Message{RoleName: p.planner.Name, Phase: "plan", Content: planResp.Text, Tags: []string{"plan"}, CreatedAt: time.Now().UTC()})

	plan := &types.Plan{
		Complexity:   sketch.Complexity,
		Stack:        sketch.Stack,
		Steps:        splitLines(planResp.Text),
		ManifestHint: sketch.ManifestHint,
	}
	return plan, usage, nil
}

// Execute runs pipeline steps 4-6 (code/test/review) against an approved
// plan. Revision loops are bounded by maxRevision (guardrail failures) and
// maxRounds (reviewer changes_required), per spec.md §4.8. It returns the
// same structured result carried on types.TaskRun.Results, alongside the
// Outcome that tells the caller (the run executor, C9) which terminal
// transition to take.
func (p *Pipeline) Execute(ctx context.Context, task *types.Task, plan *types.Plan, mem *Memory) (*types.RunResults, Outcome, error) {
	spec, ok := p.registry.Get(plan.Stack)
	if !ok {
		return nil, "", mgxerr.Newf(types.ErrValidation, "unrecognized stack tag %q", plan.Stack)
	}

	result := &types.RunResults{PhaseTimings: map[string]time.Duration{}}
	keywords := taskKeywords(task.Description)

	var codeManifest []types.FileManifestEntry
	var revisionNote string

	for round := 0; ; round++ {
		codeTimer := time.Now()
		manifestText, u, err := p.generateManifest(ctx, p.implementer, task, plan, mem, keywords, revisionNote)
		result.PhaseTimings["code"] += time.Since(codeTimer)
		result.TokensUsed.Add(u)
		if err != nil {
			return nil, "", mgxerr.Wrap(types.ErrLLM, "implementer call failed", err)
		}

		parsed, perr := manifest.Parse(manifestText, manifest.ParseOptions{Strict: task.StrictRequirements})
		if perr != nil {
			revisionNote = fmt.Sprintf("Manifest parse error: %v\nRegenerate the complete FILE manifest.", perr)
			result.RevisionRounds++
			if round >= p.maxRevision {
				return result, OutcomeNeedsInfo, nil
			}
			continue
		}

		validation := guardrails.Validate(spec, parsed, task.Constraints)
		if validation.IsValid {
			codeManifest = parsed
			mem.Append(Message{RoleName: p.implementer.Name, Phase: "code", Content: manifestText, Tags: []string{"code"}, CreatedAt: time.Now().UTC()})
			break
		}

		result.RevisionRounds++
		if round >= p.maxRevision {
			return result, OutcomeNeedsInfo, nil
		}
		revisionNote = guardrails.BuildRevisionPrompt(task.Description, validation)
	}

	testTimer := time.Now()
	testText, u, err := p.generateTestManifest(ctx, task, codeManifest, mem, keywords)
	result.PhaseTimings["test"] += time.Since(testTimer)
	result.TokensUsed.Add(u)
	if err != nil {
		return nil, "", mgxerr.Wrap(types.ErrLLM, "tester call failed", err)
	}
	testManifest, terr := manifest.Parse(testText, manifest.ParseOptions{Strict: false})
	if terr == nil {
		result.TestManifest = testManifest
		mem.Append(Message{RoleName: p.tester.Name, Phase: "test", Content: testText, Tags: []string{"test"}, CreatedAt: time.Now().UTC()})
	}

	result.Manifest = codeManifest

	for round := 0; round < p.maxRounds; round++ {
		reviewTimer := time.Now()
		verdict, u, rerr := p.review(ctx, task, codeManifest, result.TestManifest, mem, keywords)
		result.PhaseTimings["review"] += time.Since(reviewTimer)
		result.TokensUsed.Add(u)
		if rerr != nil {
			return nil, "", mgxerr.Wrap(types.ErrLLM, "reviewer call failed", rerr)
		}

		switch strings.ToLower(strings.TrimSpace(verdict.Verdict)) {
		case "approved":
			result.ReviewVerdict = "approved"
			result.ReviewNotes = verdict.Notes
			return result, OutcomeCompleted, nil
		case "needs_human_decision":
			result.ReviewVerdict = "needs_human_decision"
			result.ReviewNotes = verdict.Notes
			return result, OutcomeNeedsHumanDecision, nil
		default:
			result.ReviewVerdict = "changes_required"
			result.ReviewNotes = verdict.Notes
			revisionNote = fmt.Sprintf("Reviewer requested changes: %s", verdict.Notes)

			manifestText, cu, cerr := p.generateManifest(ctx, p.implementer, task, plan, mem, keywords, revisionNote)
			result.TokensUsed.Add(cu)
			if cerr != nil {
				return nil, "", mgxerr.Wrap(types.ErrLLM, "implementer revision call failed", cerr)
			}
			reparsed, perr := manifest.Parse(manifestText, manifest.ParseOptions{Strict: task.StrictRequirements})
			if perr != nil {
				continue
			}
			validation := guardrails.Validate(spec, reparsed, task.Constraints)
			if !validation.IsValid {
				continue
			}
			codeManifest = reparsed
			result.Manifest = codeManifest
			mem.Append(Message{RoleName: p.implementer.Name, Phase: "revision", Content: manifestText, Tags: []string{"code", "revision"}, CreatedAt: time.Now().UTC()})
		}
	}

	return result, OutcomeNeedsInfo, nil
}

func (p *Pipeline) generateManifest(ctx context.Context, role Role, task *types.Task, plan *types.Plan, mem *Memory, keywords []string, revisionNote string) (string, types.TokenUsage, error) {
	prompt := fmt.Sprintf("Stack: %s\nPlan:\n%s", plan.Stack, strings.Join(plan.Steps, "\n"))
	req := llm.Request{
		SystemPrompt: role.BuildPrompt(task.Description, mem.Relevant(role, keywords, relevantMemorySlots), revisionNote),
		Prompt:       prompt,
	}
	resp, err := p.callCached(ctx, CapCode, task.ID, req)
	if err != nil {
		return "", types.TokenUsage{}, err
	}
	return resp.Text, types.TokenUsage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}, nil
}

func (p *Pipeline) generateTestManifest(ctx context.Context, task *types.Task, codeManifest []types.FileManifestEntry, mem *Memory, keywords []string) (string, types.TokenUsage, error) {
	req := llm.Request{
		SystemPrompt: p.tester.BuildPrompt(task.Description, mem.Relevant(p.tester, keywords, relevantMemorySlots), ""),
		Prompt:       fmt.Sprintf("Code manifest:\n%s", manifest.String(codeManifest)),
	}
	resp, err := p.callCached(ctx, CapTest, task.ID, req)
	if err != nil {
		return "", types.TokenUsage{}, err
	}
	return resp.Text, types.TokenUsage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}, nil
}

func (p *Pipeline) review(ctx context.Context, task *types.Task, codeManifest, testManifest []types.FileManifestEntry, mem *Memory, keywords []string) (reviewOutput, types.TokenUsage, error) {
	req := llm.Request{
		SystemPrompt: p.reviewer.BuildPrompt(task.Description, mem.Relevant(p.reviewer, keywords, relevantMemorySlots), ""),
		Prompt: fmt.Sprintf("Code manifest:\n%s\n\nTest manifest:\n%s\nRespond with JSON: {\"verdict\":\"approved|changes_required|needs_human_decision\",\"notes\":\"...\"}",
			manifest.String(codeManifest), manifest.String(testManifest)),
		JSONSchema: `{"type":"object","properties":{"verdict":{"type":"string"},"notes":{"type":"string"}}}`,
	}
	resp, err := p.callCached(ctx, CapReview, task.ID, req)
	if err != nil {
		return reviewOutput{}, types.TokenUsage{}, err
	}
	usage := types.TokenUsage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}

	var out reviewOutput
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		logging.Get(logging.CategoryReviewer).Warn("review response was not valid JSON, treating as changes_required: %v", err)
		out = reviewOutput{Verdict: "changes_required", Notes: resp.Text}
	}
	mem.Append(Message{RoleName: p.reviewer.Name, Phase: "review", Content: resp.Text, Tags: []string{"review"}, CreatedAt: time.Now().UTC()})

	if strings.EqualFold(strings.TrimSpace(out.Verdict), "needs_human_decision") {
		// The human_reviewer role never calls the LLM itself; it just owns
		// the audit entry explaining why the Reviewer escalated, so a
		// transcript reader sees which role's competence was exceeded.
		mem.Append(Message{
			RoleName:  p.humanReviewer.Name,
			Phase:     "review",
			Content:   fmt.Sprintf("escalated: %s", out.Notes),
			Tags:      []string{"human_review"},
			CreatedAt: time.Now().UTC(),
		})
	}
	return out, usage, nil
}

// callCached wraps client.Complete with the response cache, keyed on
// model+capability+prompt per spec.md §4.1's fingerprint construction.
// Cache misses and errors both fall through to a live call; only a
// successful live call is stored.
func (p *Pipeline) callCached(ctx context.Context, capability Capability, scopeTag string, req llm.Request) (llm.Response, error) {
	key := cache.Key(cache.KeyFields{
		Model:         "default",
		TempClass:     string(capability),
		Prompt:        req.SystemPrompt + "\x1f" + req.Prompt,
		CapabilityTag: string(capability),
		ScopeTag:      scopeTag,
	})

	if payload, hit := p.cache.Lookup(key); hit {
		var resp llm.Response
		if err := json.Unmarshal(payload, &resp); err == nil {
			return resp, nil
		}
	}

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return llm.Response{}, err
	}
	if payload, merr := json.Marshal(resp); merr == nil {
		p.cache.Store(key, payload)
	}
	return resp, nil
}

func splitLines(s string) []string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
