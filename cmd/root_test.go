package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/config"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

type fakeApp struct {
	result lead.Result
	err    error
	req    lead.Request
	ran    bool
	closed bool
}

func (f *fakeApp) Run(ctx context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) RunPipeline(_ context.Context, req lead.Request) (lead.Result, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakeApp) Close() { f.closed = true }

func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateCommandPrintsResult(t *testing.T) {
	app := &fakeApp{result: lead.Result{
		RunID: "run-1",
		Count: 1,
		Data:  []lead.Candidate{{ID: "a", BusinessName: "Smile Dental", Status: lead.StatusPending, AIScore: 60}},
	}}
	withFakeApp(t, app)

	out, err := execute(t, "generate", "--city", "Pune", "--category", "dentists", "--limit", "3", "--require-phone")
	require.NoError(t, err)

	var got generateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.True(t, got.Success)
	require.Equal(t, 1, *got.Count)
	require.Equal(t, "Smile Dental", got.Data[0].BusinessName)

	require.Equal(t, "Pune", app.req.City)
	require.Equal(t, "dentists", app.req.Category)
	require.Equal(t, 3, *app.req.Limit)
	require.True(t, *app.req.RequirePhone)
	require.True(t, app.closed)
}

func TestGenerateCommandLeavesDefaultsUnset(t *testing.T) {
	app := &fakeApp{result: lead.Result{}}
	withFakeApp(t, app)

	_, err := execute(t, "generate", "--city", "Pune", "--category", "dentists")
	require.NoError(t, err)
	require.Nil(t, app.req.Limit)
	require.Nil(t, app.req.RequirePhone)
}

func TestGenerateCommandReportsFailure(t *testing.T) {
	app := &fakeApp{err: lead.ErrNoCandidates}
	withFakeApp(t, app)

	out, err := execute(t, "generate", "--city", "Pune", "--category", "dentists")
	require.ErrorIs(t, err, lead.ErrNoCandidates)
	require.Contains(t, out, `"error": "no candidates found"`)
	require.Contains(t, out, `"success": false`)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
	require.True(t, app.closed)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "--config", "/does/not/exist.yaml", "generate")
	require.Error(t, err)
}
