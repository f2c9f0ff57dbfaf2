package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

/* ============================================================================
   Helpers
   ============================================================================ */

const storyReply = `{
  "incident": {"date": "2024-03-02", "city": "Houston", "state": "TX", "summary": "Tackled at a gas station"},
  "defendants": [{"name": "officer j.  miller"}, {"name": "Sgt. Ruiz", "agency_name": "Houston Police Department"}],
  "witnesses": [],
  "evidence": [{"evidence_type": "video", "description": "Phone recording of the stop"}],
  "narrative": {"during_incident": "The officer tackled me."},
  "damages": {"physical_injury": true, "physical_description": "Bruised ribs"}
}`

const rightsReply = `{"violations":[
  {"right":"fourth_amendment_excessive_force","explanation":"Tackled while filming","confidence":"high"}]}`

var answers7 = map[int]string{
	1: `{"first_name":"Ana","last_name":"Reyes","street":"9 Oak St","city":"Houston","state":"tx","zip":"77002","ssn":"123-45-6789"}`,
	2: `{"incident_date":"2024-03-02","incident_time":"21:15","city":"Houston","state":"TX","summary":"Tackled while filming"}`,
	3: `{"story_text":"I was filming a traffic stop at a gas station when an officer tackled me."}`,
	4: `{"defendants":[{"name":"Officer J. Miller","badge_number":"4471"}]}`,
	5: `{"witnesses":[{"name":"Luis Ortega","relationship":"bystander"}],"evidence":[]}`,
	6: `{"physical_injury":true,"medical_expenses":1200.5,"damages_description":"Bruised ribs"}`,
	7: `{"compensatory":true,"jury_trial":true,"amount_requested":"$50,000"}`,
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	runner *jobs.Runner
	user   *models.User
	calls  atomic.Int32
}

var errModelPanics = errors.New("model panics")

func newFixture(t *testing.T, fail error, mutate ...func(*models.User)) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := logger.Nop()
	store, err := prompts.NewStore(db, nil, time.Minute, log)
	require.NoError(t, err)

	f := &fixture{db: db, runner: jobs.NewRunner(log, nil)}
	model := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		f.calls.Add(1)
		switch {
		case errors.Is(fail, errModelPanics):
			panic("model client crashed")
		case fail != nil:
			return "", fail
		case strings.Contains(req.User, "Read the story below"):
			return storyReply, nil
		case strings.Contains(req.User, "Allowed categories"):
			return rightsReply, nil
		}
		return "", errors.New("no scripted reply")
	})

	docs := documents.NewService(db, models.DefaultPolicy(), log, nil)
	ai, err := assist.NewService(assist.Deps{Docs: docs, Prompts: store, LLM: model, Runner: f.runner, Log: log})
	require.NoError(t, err)
	f.svc = NewService(docs, ai, log)
	f.user = testutil.SeedUser(t, db, mutate...)
	return f
}

func (f *fixture) start(t *testing.T) *models.WizardSession {
	t.Helper()
	sess, created, err := f.svc.Start(context.Background(), f.user.ID, false)
	require.NoError(t, err)
	require.True(t, created)
	return sess
}

func (f *fixture) answer(t *testing.T, sess *models.WizardSession, steps ...int) *models.WizardSession {
	t.Helper()
	var out *models.WizardSession
	for _, n := range steps {
		var fieldErrs map[string][]string
		var err error
		out, fieldErrs, err = f.svc.SaveStep(context.Background(), f.user.ID, sess.ID, n, []byte(answers7[n]))
		require.NoError(t, err, "step %d", n)
		require.Nil(t, fieldErrs, "step %d", n)
	}
	return out
}

func (f *fixture) freeUsed(t *testing.T) int {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", f.user.ID).Error)
	return u.FreeAIGenerationsUsed
}

/* ============================================================================
   Steps
   ============================================================================ */

func TestDecodeKeepsOnlyDeclaredFields(t *testing.T) {
	step, ok := StepByNumber(1)
	require.True(t, ok)

	data, fieldErrs, err := step.Decode([]byte(answers7[1]))
	require.NoError(t, err)
	require.Nil(t, fieldErrs)
	assert.NotContains(t, data, "ssn")
	assert.Equal(t, "TX", data["state"])
	assert.Len(t, data, 6)
	assert.NotContains(t, data, "phone", "fields not sent are not stored")
	assert.NotContains(t, data, "is_prisoner")

	_, fieldErrs, err = step.Decode([]byte(`{"first_name":"Ana","state":"ZZ","zip":"7700"}`))
	require.NoError(t, err)
	assert.Contains(t, fieldErrs, "state")
	assert.Contains(t, fieldErrs, "zip")
	assert.Contains(t, fieldErrs, "street")
}

func TestMoneyAcceptsNumbersAndStrings(t *testing.T) {
	step, _ := StepByNumber(6)
	data, fieldErrs, err := step.Decode([]byte(`{"medical_expenses":1200.5,"lost_wages":"$300"}`))
	require.NoError(t, err)
	require.Nil(t, fieldErrs)
	assert.Equal(t, "1200.5", data["medical_expenses"])
	assert.Equal(t, "$300", data["lost_wages"])
	assert.Len(t, data, 2)

	_, fieldErrs, err = step.Decode([]byte(`{"medical_expenses":"lots"}`))
	require.NoError(t, err)
	assert.Contains(t, fieldErrs, "medical_expenses")
}

func TestAdvanceNeverGoesBack(t *testing.T) {
	cur, pct := advance(1, 0, 1)
	assert.Equal(t, 2, cur)
	assert.Equal(t, 14, pct)

	cur, pct = advance(5, 71, 2)
	assert.Equal(t, 5, cur)
	assert.Equal(t, 71, pct)

	cur, pct = advance(7, 86, 7)
	assert.Equal(t, 7, cur)
	assert.Equal(t, 100, pct)
}

/* ============================================================================
   Sessions
   ============================================================================ */

func TestStartResumesOpenSession(t *testing.T) {
	f := newFixture(t, nil)
	first := f.start(t)

	again, created, err := f.svc.Start(context.Background(), f.user.ID, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	fresh, created, err := f.svc.Start(context.Background(), f.user.ID, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestSaveStepOrderAndStorage(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t)

	_, _, err := f.svc.SaveStep(context.Background(), f.user.ID, sess.ID, 3, []byte(answers7[3]))
	assert.ErrorIs(t, err, ErrStepLocked)

	_, _, err = f.svc.SaveStep(context.Background(), f.user.ID, sess.ID, 8, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownStep)

	_, _, err = f.svc.SaveStep(context.Background(), f.user.ID, sess.ID, 1, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	got := f.answer(t, sess, 1, 2, 3)
	assert.Equal(t, 4, got.CurrentStep)
	assert.Equal(t, 43, got.ProgressPercent)

	// Going back to edit step 1 keeps the position.
	got = f.answer(t, sess, 1)
	assert.Equal(t, 4, got.CurrentStep)
	assert.Equal(t, 43, got.ProgressPercent)

	stored, err := f.svc.Get(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	step1, ok := stored.StepData["1"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, step1, "ssn")

	other := testutil.SeedUser(t, f.db)
	_, err = f.svc.Get(context.Background(), other.ID, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

/* ============================================================================
   Background AI
   ============================================================================ */

func TestStoryAndAnalysisJobs(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3)

	poll, started, err := f.svc.SubmitStory(context.Background(), f.user.ID, sess.ID, "")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, models.JobProcessing, poll.Status)

	_, started, err = f.svc.SubmitAnalysis(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.True(t, started)
	f.runner.Wait()

	story, err := f.svc.StoryPoll(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, story.Status)
	var facts assist.StoryFacts
	require.NoError(t, json.Unmarshal(story.Result, &facts))
	assert.Len(t, facts.Defendants, 2)

	analysis, err := f.svc.AnalysisPoll(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, analysis.Status)
	assert.Contains(t, string(analysis.Result), "fourth_amendment_excessive_force")

	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, 2, f.freeUsed(t))
}

func TestStoryResubmitWhileProcessingIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3)
	require.NoError(t, f.db.Model(&models.WizardSession{}).Where("id = ?", sess.ID).Updates(map[string]any{
		"story_status":     models.JobProcessing,
		"story_started_at": time.Now().Add(-10 * time.Second),
	}).Error)

	poll, started, err := f.svc.SubmitStory(context.Background(), f.user.ID, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, models.JobProcessing, poll.Status)
	assert.Zero(t, f.calls.Load())
}

func TestStoryJobFailureIsNotCounted(t *testing.T) {
	f := newFixture(t, errors.New("upstream down"))
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3)

	_, started, err := f.svc.SubmitStory(context.Background(), f.user.ID, sess.ID, "")
	require.NoError(t, err)
	require.True(t, started)
	f.runner.Wait()

	poll, err := f.svc.StoryPoll(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, poll.Status)
	assert.NotEmpty(t, poll.Error)
	assert.Zero(t, f.freeUsed(t))
}

func TestAnalysisJobPanicIsMarkedFailed(t *testing.T) {
	f := newFixture(t, errModelPanics)
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3)

	_, started, err := f.svc.SubmitAnalysis(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	require.True(t, started)
	f.runner.Wait()

	poll, err := f.svc.AnalysisPoll(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, poll.Status)
	assert.NotEmpty(t, poll.Error)
	assert.Zero(t, f.freeUsed(t))
}

func TestWizardAIRespectsFreeLimit(t *testing.T) {
	f := newFixture(t, nil, func(u *models.User) { u.FreeAIGenerationsUsed = 3 })
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3)

	_, _, err := f.svc.SubmitStory(context.Background(), f.user.ID, sess.ID, "")
	assert.ErrorIs(t, err, assist.ErrAILimit)
	assert.Zero(t, f.calls.Load())
}

/* ============================================================================
   Completion
   ============================================================================ */

func TestCompleteRequiresEveryStep(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.start(t)
	f.answer(t, sess, 1, 2)

	_, err := f.svc.Complete(context.Background(), f.user.ID, sess.ID)
	var missing *MissingStepsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []int{3, 4, 5, 6, 7}, missing.Steps)
}

func TestCompleteBuildsDocument(t *testing.T) {
	f := newFixture(t, nil, func(u *models.User) { u.Street = "" })
	sess := f.start(t)
	f.answer(t, sess, 1, 2, 3, 4, 5, 6, 7)

	_, _, err := f.svc.SubmitStory(context.Background(), f.user.ID, sess.ID, "")
	require.NoError(t, err)
	_, _, err = f.svc.SubmitAnalysis(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	f.runner.Wait()

	doc, err := f.svc.Complete(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)

	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", f.user.ID).Error)
	assert.Equal(t, "9 Oak St", u.Street, "blank profile fields are filled from step 1")
	assert.Equal(t, "Dallas", u.City, "filled profile fields are kept")

	require.NotNil(t, doc.PlaintiffInfo)
	assert.Equal(t, "Houston", doc.PlaintiffInfo.City)
	assert.Equal(t, "77002", doc.PlaintiffInfo.ZipCode)

	require.NotNil(t, doc.IncidentOverview)
	assert.Equal(t, "Tackled while filming", doc.IncidentOverview.Summary, "answers win over extracted facts")
	assert.Equal(t, "21:15", doc.IncidentOverview.IncidentTime)

	require.Len(t, doc.Defendants, 2, "extracted defendants are merged without duplicates")
	assert.Equal(t, "Officer J. Miller", doc.Defendants[0].Name)
	assert.Len(t, doc.Witnesses, 1)
	assert.Len(t, doc.Evidence, 1)

	require.NotNil(t, doc.Damages)
	assert.Equal(t, "1200.5", doc.Damages.MedicalExpenses.String())
	require.NotNil(t, doc.ReliefSought)
	assert.Equal(t, "50000", doc.ReliefSought.AmountRequested.String())
	assert.True(t, doc.ReliefSought.JuryTrial)

	require.NotNil(t, doc.RightsViolated)
	assert.Empty(t, doc.RightsViolated.Selected(), "suggestions are not checked automatically")
	assert.Contains(t, string(doc.RightsViolated.AISuggestions), "fourth_amendment_excessive_force")

	statuses := map[models.SectionType]models.SectionStatus{}
	for _, s := range doc.Sections {
		statuses[s.SectionType] = s.Status
	}
	assert.Equal(t, models.SectionCompleted, statuses[models.SectionIncidentOverview])
	assert.Equal(t, models.SectionCompleted, statuses[models.SectionNarrative])
	assert.Equal(t, models.SectionCompleted, statuses[models.SectionDefendants])
	assert.Equal(t, models.SectionCompleted, statuses[models.SectionDamages])
	assert.Equal(t, models.SectionCompleted, statuses[models.SectionReliefSought])
	assert.Equal(t, models.SectionInProgress, statuses[models.SectionRightsViolated])

	again, err := f.svc.Complete(context.Background(), f.user.ID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID)

	var n int64
	require.NoError(t, f.db.Model(&models.Document{}).Where("user_id = ?", f.user.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	_, _, err = f.svc.SaveStep(context.Background(), f.user.ID, sess.ID, 7, []byte(answers7[7]))
	assert.ErrorIs(t, err, ErrCompleted)
}

/* ============================================================================
   HTTP
   ============================================================================ */

func TestWizardRoutes(t *testing.T) {
	f := newFixture(t, nil)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(f.user.ID, false))
	NewHandler(f.svc).Mount(app.Group("/api/v1/wizard"))

	resp := testutil.Do(t, app, http.MethodGet, "/api/v1/wizard/steps", nil)
	var steps []Step
	testutil.Decode(t, resp, &steps)
	assert.Len(t, steps, TotalSteps)

	resp = testutil.Do(t, app, http.MethodPost, "/api/v1/wizard/start", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sess models.WizardSession
	testutil.Decode(t, resp, &sess)

	resp = testutil.Do(t, app, http.MethodPost, "/api/v1/wizard/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	base := "/api/v1/wizard/sessions/" + sess.ID.String()
	resp = testutil.Do(t, app, http.MethodPost, base+"/steps/1", map[string]any{"first_name": "Ana", "state": "Texas"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Contains(t, body["errors"], "state")

	resp = testutil.Do(t, app, http.MethodPost, base+"/steps/2", json.RawMessage(answers7[2]))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodPost, base+"/steps/1", json.RawMessage(answers7[1]))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.Decode(t, resp, &sess)
	assert.Equal(t, 2, sess.CurrentStep)

	resp = testutil.Do(t, app, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodGet, "/api/v1/wizard/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
