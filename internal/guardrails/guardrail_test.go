package guardrails

import (
	"strings"
	"testing"

	"github.com/mgxlabs/orchestrator/internal/types"
	"github.com/stretchr/testify/require"
)

func testSpec(t *testing.T) *CompiledStackSpec {
	t.Helper()
	reg, err := NewRegistry()
	require.NoError(t, err)
	spec, ok := reg.Get("react-vite")
	require.True(t, ok)
	return spec
}

func TestValidate_RequiredFilesMissing(t *testing.T) {
	spec := testSpec(t)
	manifest := []types.FileManifestEntry{
		{Path: "src/main.tsx", Content: "export const x = 1", Op: types.OpCreate},
	}
	result := Validate(spec, manifest, nil)
	require.False(t, result.IsValid)
	require.NotEmpty(t, result.Errors)
}

func TestValidate_RequiredDirsNoFilesUnder(t *testing.T) {
	spec := testSpec(t)
	manifest := []types.FileManifestEntry{
		{Path: "package.json", Content: "{}", Op: types.OpCreate},
		{Path: "vite.config.ts", Content: "export default {}", Op: types.OpCreate},
		{Path: "index.html", Content: "<html></html>", Op: types.OpCreate},
		{Path: "src/main.tsx", Content: "export const x = 1", Op: types.OpCreate},
	}
	result := Validate(spec, manifest, nil)
	require.False(t, result.IsValid)
	found := false
	for _, e := range result.Errors {
		if e == "required directory has no files: src/components" {
			found = true
		}
	}
	require.True(t, found, "expected missing src/components error, got %v", result.Errors)
}

func TestValidate_ForbiddenFilePresent(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	manifest = append(manifest, types.FileManifestEntry{Path: "webpack.config.js", Content: "module.exports = {}", Op: types.OpCreate})
	result := Validate(spec, manifest, nil)
	require.False(t, result.IsValid)
	require.Contains(t, result.Errors, "forbidden file present: webpack.config.js")
}

func TestValidate_RequiredCommandAbsentIsWarningOnly(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	for i, e := range manifest {
		if e.Path == "package.json" {
			manifest[i].Content = "{}"
		}
		if e.Path == "vite.config.ts" {
			manifest[i].Content = "export default {}"
		}
	}
	result := Validate(spec, manifest, nil)
	require.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
}

func TestValidate_ForbiddenImportMatchedAsError(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	for i, e := range manifest {
		if e.Path == "src/components/App.tsx" {
			manifest[i].Content = "import { createApp } from 'vue'\n"
		}
	}
	result := Validate(spec, manifest, nil)
	require.False(t, result.IsValid)
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "forbidden import") {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidate_ForbiddenImportIgnoredInsideComment(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	for i, e := range manifest {
		if e.Path == "src/components/App.tsx" {
			manifest[i].Content = "// import { createApp } from 'vue'\nexport const App = () => null\n"
		}
	}
	result := Validate(spec, manifest, nil)
	require.True(t, result.IsValid)
}

func TestValidate_MixedStackIsWarningNotError(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	manifest = append(manifest, types.FileManifestEntry{Path: "requirements.txt", Content: "flask==3.0\n", Op: types.OpCreate})
	result := Validate(spec, manifest, nil)
	require.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
}

func TestValidate_UnknownConstraintTokenIsWarningOnly(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	result := Validate(spec, manifest, []string{"some_made_up_token"})
	require.True(t, result.IsValid)
	require.NotEmpty(t, result.Warnings)
}

func TestValidate_NoExtraLibrariesRejectsUnlistedDep(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	for i, e := range manifest {
		if e.Path == "package.json" {
			manifest[i].Content = `{"dependencies": {"react": "^18.0.0", "lodash": "^4.17.0"}}`
		}
	}
	result := Validate(spec, manifest, []string{ConstraintNoExtraLibraries})
	require.False(t, result.IsValid)
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "lodash") {
			found = true
		}
	}
	require.True(t, found, "expected lodash flagged, got %v", result.Errors)
}

func TestValidate_IncludeEnvExampleMissing(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	result := Validate(spec, manifest, []string{ConstraintIncludeEnvExample})
	require.False(t, result.IsValid)
}

func TestValidate_IncludeEnvExamplePresent(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	manifest = append(manifest, types.FileManifestEntry{Path: ".env.example", Content: "API_URL=\n", Op: types.OpCreate})
	result := Validate(spec, manifest, []string{ConstraintIncludeEnvExample})
	require.True(t, result.IsValid)
}

func TestValidate_UsePnpmRequiresLockfileOrReference(t *testing.T) {
	spec := testSpec(t)
	manifest := validReactManifest()
	result := Validate(spec, manifest, []string{ConstraintUsePnpm})
	require.False(t, result.IsValid)

	manifest = append(manifest, types.FileManifestEntry{Path: "pnpm-lock.yaml", Content: "lockfileVersion: 6\n", Op: types.OpCreate})
	result = Validate(spec, manifest, []string{ConstraintUsePnpm})
	require.True(t, result.IsValid)
}

func TestBuildRevisionPrompt_IncludesErrorsAndDirective(t *testing.T) {
	result := ValidationResult{
		Errors:   []string{"required file missing: package.json"},
		Warnings: []string{"expected indicator not found anywhere in manifest: vite"},
	}
	prompt := BuildRevisionPrompt("Build a todo app", result)
	require.Contains(t, prompt, "Build a todo app")
	require.Contains(t, prompt, "required file missing: package.json")
	require.Contains(t, prompt, "expected indicator not found anywhere in manifest: vite")
	require.Contains(t, prompt, "FILE:")
}

func validReactManifest() []types.FileManifestEntry {
	return []types.FileManifestEntry{
		{Path: "package.json", Content: `{"dependencies": {"react": "^18.0.0", "react-dom": "^18.0.0", "vite": "^5.0.0"}}`, Op: types.OpCreate},
		{Path: "vite.config.ts", Content: "// vite\nexport default {}", Op: types.OpCreate},
		{Path: "index.html", Content: "<html></html>", Op: types.OpCreate},
		{Path: "src/main.tsx", Content: "import App from './components/App'\n", Op: types.OpCreate},
		{Path: "src/components/App.tsx", Content: "export const App = () => null\n", Op: types.OpCreate},
	}
}
