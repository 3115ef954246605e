package guardrails

import (
	"fmt"
	"strings"

	"github.com/mgxlabs/orchestrator/internal/types"
)

// ValidationResult is the outcome of evaluating a manifest against a
// StackSpec and a task's constraint tokens. Errors block execution
// progress; warnings do not.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
	// MixedStacks lists the stack indicators detected together (e.g.
	// "package.json", "requirements.txt") when a manifest looks like a
	// monorepo. Empty unless checkMixedStack fires; callers that want to
	// render this distinctly from the generic warning list can use this
	// instead of grepping Warnings.
	MixedStacks []string
}

// Constraint tokens recognized per spec.md §4.3. Unknown tokens produce a
// warning and are otherwise ignored.
const (
	ConstraintNoExtraLibraries  = "no_extra_libraries"
	ConstraintIncludeEnvExample = "include_env_example"
	ConstraintUsePnpm           = "use_pnpm"
)

// Validate checks manifest against spec and the task's constraint tokens,
// per spec.md §4.3's per-stack and constraint-token rules.
func Validate(spec *CompiledStackSpec, manifest []types.FileManifestEntry, constraints []string) ValidationResult {
	result := ValidationResult{IsValid: true}

	paths := make(map[string]types.FileManifestEntry, len(manifest))
	for _, e := range manifest {
		paths[e.Path] = e
	}

	checkRequiredFiles(spec, paths, &result)
	checkRequiredDirs(spec, paths, &result)
	checkForbiddenFiles(spec, paths, &result)
	checkRequiredCommands(spec, manifest, &result)
	checkForbiddenImports(spec, manifest, &result)
	checkMixedStack(paths, &result)

	for _, token := range constraints {
		applyConstraint(token, spec, manifest, paths, &result)
	}

	if len(result.Errors) > 0 {
		result.IsValid = false
	}
	return result
}

func checkRequiredFiles(spec *CompiledStackSpec, paths map[string]types.FileManifestEntry, result *ValidationResult) {
	for _, req := range spec.RequiredFiles {
		if _, ok := paths[req]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("required file missing: %s", req))
		}
	}
}

func checkRequiredDirs(spec *CompiledStackSpec, paths map[string]types.FileManifestEntry, result *ValidationResult) {
	for _, dir := range spec.RequiredDirs {
		prefix := strings.TrimSuffix(dir, "/") + "/"
		found := false
		for p := range paths {
			if strings.HasPrefix(p, prefix) {
				found = true
				break
			}
		}
		if !found {
			result.Errors = append(result.Errors, fmt.Sprintf("required directory has no files: %s", dir))
		}
	}
}

func checkForbiddenFiles(spec *CompiledStackSpec, paths map[string]types.FileManifestEntry, result *ValidationResult) {
	for _, f := range spec.ForbiddenFiles {
		if _, ok := paths[f]; ok {
			result.Errors = append(result.Errors, fmt.Sprintf("forbidden file present: %s", f))
		}
	}
}

func checkRequiredCommands(spec *CompiledStackSpec, manifest []types.FileManifestEntry, result *ValidationResult) {
	for _, cmd := range spec.RequiredCommands {
		found := false
		for _, e := range manifest {
			if strings.Contains(e.Content, cmd) {
				found = true
				break
			}
		}
		if !found {
			result.Warnings = append(result.Warnings, fmt.Sprintf("expected indicator not found anywhere in manifest: %s", cmd))
		}
	}
}

func checkForbiddenImports(spec *CompiledStackSpec, manifest []types.FileManifestEntry, result *ValidationResult) {
	for _, e := range manifest {
		lines := StripLines(e.Content)
		for lineNum, line := range lines {
			for i, re := range spec.forbiddenImportRe {
				if re.MatchString(line) {
					result.Errors = append(result.Errors, fmt.Sprintf(
						"%s:%d: forbidden import pattern matched (%s): %s",
						e.Path, lineNum+1, spec.ForbiddenImports[i], strings.TrimSpace(line)))
				}
			}
		}
	}
}

// checkMixedStack emits a warning (never an error) when indicators of more
// than one stack appear together, since monorepos are legal per spec.md
// §4.3.
func checkMixedStack(paths map[string]types.FileManifestEntry, result *ValidationResult) {
	indicators := []string{"package.json", "requirements.txt", "composer.json"}

	var present []string
	for _, ind := range indicators {
		if _, ok := paths[ind]; ok {
			present = append(present, ind)
		}
	}
	if len(present) > 1 {
		result.MixedStacks = present
		result.Warnings = append(result.Warnings, "manifest contains indicators of more than one stack; treating as a monorepo")
	}
}

func applyConstraint(token string, spec *CompiledStackSpec, manifest []types.FileManifestEntry, paths map[string]types.FileManifestEntry, result *ValidationResult) {
	switch token {
	case ConstraintNoExtraLibraries:
		checkNoExtraLibraries(spec, manifest, result)
	case ConstraintIncludeEnvExample:
		checkIncludeEnvExample(paths, result)
	case ConstraintUsePnpm:
		checkUsePnpm(spec, paths, result)
	default:
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown constraint token ignored: %s", token))
	}
}

func checkNoExtraLibraries(spec *CompiledStackSpec, manifest []types.FileManifestEntry, result *ValidationResult) {
	allowed := make(map[string]bool, len(spec.CommonDeps))
	for _, d := range spec.CommonDeps {
		allowed[d] = true
	}
	for _, e := range manifest {
		if e.Path != "package.json" && e.Path != "requirements.txt" && e.Path != "composer.json" {
			continue
		}
		for _, line := range StripLines(e.Content) {
			dep := extractDependencyName(line)
			if dep == "" || allowed[dep] {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("no_extra_libraries violated: %s declares %q, which is not in the stack's common dependency set", e.Path, dep))
		}
	}
}

// extractDependencyName is a best-effort heuristic for pulling a package
// name out of a manifest-file line (package.json's quoted key, or a
// requirements.txt bare name). It is intentionally conservative: lines it
// can't confidently classify as a dependency declaration return "".
func extractDependencyName(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, `"`) && strings.Contains(trimmed, `":`) {
		end := strings.Index(trimmed[1:], `"`)
		if end > 0 {
			return trimmed[1 : end+1]
		}
	}
	return ""
}

func checkIncludeEnvExample(paths map[string]types.FileManifestEntry, result *ValidationResult) {
	for _, candidate := range []string{".env.example", ".env.sample"} {
		if _, ok := paths[candidate]; ok {
			return
		}
	}
	result.Errors = append(result.Errors, "include_env_example violated: manifest contains server code but no .env.example")
}

func checkUsePnpm(spec *CompiledStackSpec, paths map[string]types.FileManifestEntry, result *ValidationResult) {
	if spec.Language != "typescript" && spec.Language != "javascript" {
		return
	}
	if _, ok := paths["pnpm-lock.yaml"]; ok {
		return
	}
	if pkg, ok := paths["package.json"]; ok && strings.Contains(pkg.Content, "pnpm") {
		return
	}
	result.Errors = append(result.Errors, "use_pnpm violated: no pnpm-lock.yaml and package.json does not reference pnpm")
}

// BuildRevisionPrompt assembles the structured corrective instruction
// handed back to the orchestrator for the next attempt, per spec.md
// §4.3's revision-prompt-building rule.
func BuildRevisionPrompt(taskDescription string, result ValidationResult) string {
	var b strings.Builder
	b.WriteString("The previously generated manifest failed validation. ")
	b.WriteString("Regenerate a complete, corrected manifest that resolves every error below.\n\n")
	b.WriteString("Original task:\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\nErrors (must fix):\n")
	for _, e := range result.Errors {
		b.WriteString("- " + e + "\n")
	}
	if len(result.Warnings) > 0 {
		b.WriteString("\nWarnings (address if reasonable, not blocking):\n")
		for _, w := range result.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	b.WriteString("\nRespond with a complete manifest using FILE: blocks, not a partial diff.\n")
	return b.String()
}
