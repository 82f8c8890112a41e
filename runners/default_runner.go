// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petmal/genetrial/cache"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/logging"
	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/providers"
	"github.com/petmal/genetrial/providers/execution"
	"github.com/petmal/genetrial/validators"
	"github.com/rs/zerolog"
)

// Detail titles shown in result reports.
const (
	executionErrorTitle  = "Execution Error"
	validationErrorTitle = "Validation Error"
	notSupportedTitle    = "Feature Not Supported"
	tokenBudgetTitle     = "Token Budget Exceeded"
	turnBudgetTitle      = "Turn Limit Exceeded"
	cachedResultTitle    = "Cached Result"
)

// defaultRunID names cache records when no run ID is configured.
const defaultRunID = "default"

// eventChannelBuffer is the capacity of the progress and message event channels.
// Events that no listener consumes in time are dropped rather than block the run.
const eventChannelBuffer = 64

// eventEmitter broadcasts runner activity to an active interactive session.
type eventEmitter interface {
	// emitProgressEvent signals that another trial case has finished.
	emitProgressEvent()
	// emitMessageEvent publishes a log message from the active run.
	emitMessageEvent(message string)
}

// RunnerOption configures optional behavior of a Runner created by NewDefaultRunner.
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	executionConfig config.ExecutionConfig
	store           cache.Store
	tools           []config.ToolConfig
}

// WithExecutionConfig sets concurrency, budgets, timeouts and cache behavior for the runner.
func WithExecutionConfig(cfg config.ExecutionConfig) RunnerOption {
	return func(o *runnerOptions) {
		o.executionConfig = cfg
	}
}

// WithCacheStore sets the store used to record finished cases and resume interrupted runs.
// Without a store, every case is computed anew and nothing is recorded.
func WithCacheStore(store cache.Store) RunnerOption {
	return func(o *runnerOptions) {
		o.store = store
	}
}

// WithAvailableTools makes the given tool configurations available to task runs.
func WithAvailableTools(tools []config.ToolConfig) RunnerOption {
	return func(o *runnerOptions) {
		o.tools = tools
	}
}

// NewDefaultRunner creates a new Runner that executes tasks on all configured providers.
// Trial cases execute concurrently up to the configured worker count; cases on
// a provider marked with SerializeRequests run one at a time. It returns an
// error if any provider initialization fails or if the configured judge cannot
// be resolved.
func NewDefaultRunner(ctx context.Context, cfg []config.ProviderConfig, validationRules config.ValidationRules, judges []config.JudgeConfig, logger zerolog.Logger, opts ...RunnerOption) (Runner, error) {
	var options runnerOptions
	for _, opt := range opts {
		opt(&options)
	}

	validatorFactory := validators.NewFactory(judges)
	if validationRules.UseJudge() {
		if err := validatorFactory.AssertExists(validationRules.Judge); err != nil {
			return nil, fmt.Errorf("failed to initialize task runner: %w", err)
		}
	}

	targets := make([]*runTarget, 0, len(cfg))
	for _, providerConfig := range cfg {
		client, err := providers.NewProvider(ctx, providerConfig, options.tools)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize task runner: %w", err)
		}
		target := &runTarget{
			name:      providerConfig.Name,
			provider:  client,
			serialize: providerConfig.SerializeRequests,
		}
		for _, run := range providerConfig.GetRunsResolved() {
			if run.Disabled != nil && *run.Disabled {
				continue
			}
			run = stampBudgets(run, options.executionConfig)
			target.runs = append(target.runs, runExecution{
				cfg:      run,
				executor: execution.NewExecutor(client, run),
			})
		}
		targets = append(targets, target)
	}

	return &defaultRunner{
		targets:         targets,
		validationRules: validationRules,
		validators:      validatorFactory,
		executionConfig: options.executionConfig,
		store:           options.store,
		logger:          logger,
	}, nil
}

// stampBudgets applies execution-level budget defaults to a run configuration.
func stampBudgets(run config.RunConfig, cfg config.ExecutionConfig) config.RunConfig {
	if run.MaxTurns == 0 {
		run.MaxTurns = cfg.GetMaxTurns()
	}
	if run.MaxTokens == 0 {
		run.MaxTokens = cfg.GetMaxTokens()
	}
	return run
}

// runTarget binds a provider to its enabled run configurations.
// The lock serializes task runs on providers whose endpoint does not
// handle concurrent requests safely; other providers run cases in
// parallel up to the worker count.
type runTarget struct {
	name      string
	provider  providers.Provider
	runs      []runExecution
	serialize bool
	lock      sync.Mutex
}

// runExecution binds a run configuration to its executor.
type runExecution struct {
	cfg      config.RunConfig
	executor *execution.Executor
}

// workUnit is a single trial case scheduled for execution.
// The slot points at the result position reserved for this case.
type workUnit struct {
	target *runTarget
	run    runExecution
	task   config.Task
	key    string
	slot   *RunResult
	cached *cache.Record
}

type defaultRunner struct {
	targets         []*runTarget // All tasks will be executed against all run configurations of each target provider.
	validationRules config.ValidationRules
	validators      *validators.Factory
	executionConfig config.ExecutionConfig
	store           cache.Store
	logger          zerolog.Logger

	activeRunLock sync.RWMutex
	activeRun     *asyncTrialRun

	progressLock   sync.Mutex
	completedTasks int
	totalTasks     int
}

func (r *defaultRunner) Run(ctx context.Context, tasks []config.Task) (ResultSet, error) {
	results, err := r.execute(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return trialResults{results: results}, nil
}

func (r *defaultRunner) Start(ctx context.Context, tasks []config.Task) (AsyncResultSet, error) {
	runCtx, cancel := context.WithCancel(ctx)
	run := &asyncTrialRun{
		progressEvents: make(chan float32, eventChannelBuffer),
		messageEvents:  make(chan string, eventChannelBuffer),
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	r.setActiveRun(run)

	go func() {
		defer cancel()
		results, err := r.execute(runCtx, tasks)
		if err != nil {
			r.logger.Error().Err(err).Msg("task run failed")
		}
		r.setActiveRun(nil)
		run.finish(results)
	}()

	return run, nil
}

func (r *defaultRunner) execute(ctx context.Context, tasks []config.Task) (Results, error) {
	logger := NewEmittingLogger(r.logger, r)

	units, results := r.planUnits(tasks)
	if r.store != nil {
		if err := r.prepareCache(ctx, logger, units); err != nil {
			return nil, err
		}
	}
	r.resetProgress(len(units))

	logger.Message(ctx, logging.LevelInfo, "starting %d task%s on %d provider%s...", pluralize(countable(len(tasks)), countable(len(r.targets)))...)
	start := time.Now()

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	var failOnce sync.Once
	var fatalErr error
	fail := func(err error) {
		failOnce.Do(func() {
			fatalErr = err
			cancelWork()
		})
	}

	unitQueue := make(chan *workUnit)
	var wg sync.WaitGroup
	for range r.executionConfig.GetConcurrency() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range unitQueue {
				r.processUnit(workCtx, logger, unit, fail)
			}
		}()
	}
	for i := range units {
		unitQueue <- &units[i]
	}
	close(unitQueue)
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}

	logger.Message(ctx, logging.LevelInfo, "all tasks in all configurations have finished on all providers in %s.", time.Since(start))
	return results, nil
}

// planUnits lays out one work unit per provider, run configuration and task.
// It reserves a result slot for every unit so that the final ordering does not
// depend on the order in which the units finish.
func (r *defaultRunner) planUnits(tasks []config.Task) ([]workUnit, Results) {
	results := make(Results, len(r.targets))
	var units []workUnit
	for _, target := range r.targets {
		slots := make([]RunResult, len(target.runs)*len(tasks))
		results[target.name] = slots
		for runIndex, run := range target.runs {
			for taskIndex, task := range tasks {
				task.ResolveValidationRules(r.validationRules)
				units = append(units, workUnit{
					target: target,
					run:    run,
					task:   task,
					key:    caseKey(target.name, run.cfg.Name, task.Name),
					slot:   &slots[runIndex*len(tasks)+taskIndex],
				})
			}
		}
	}
	return units, results
}

// caseKey identifies a single trial case within a cached run.
func caseKey(provider string, run string, task string) string {
	return provider + "/" + run + "/" + task
}

// prepareCache applies the configured cache mode before any unit executes.
// In clear mode all records of the run are removed. Previously completed
// cases are marked for reuse instead of re-execution in read mode, and
// whenever an explicitly identified run is resumed, whatever the mode:
// a run ID pointing at prior progress is by itself a request to pick up
// where that run left off. Passing results are always reused, while results
// that did not pass are reused only when resuming, so that a shared cache
// never pins a failure. RetryFailed re-queues completed cases that did not
// pass even on resume.
func (r *defaultRunner) prepareCache(ctx context.Context, logger logging.Logger, units []workUnit) error {
	runID := r.runID()
	resuming := config.IsNotBlank(r.executionConfig.RunID)
	mode := r.executionConfig.GetCacheMode()

	if mode == config.CacheModeClear {
		logger.Message(ctx, logging.LevelInfo, "clearing cached results of run: %s", runID)
		if err := r.store.Clear(ctx, runID); err != nil {
			return fmt.Errorf("failed to clear cached results: %w", err)
		}
		return nil
	}
	if mode != config.CacheModeRead && !resuming {
		return nil
	}

	completed, err := r.store.CompletedCases(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run progress: %w", err)
	}
	reused := 0
	for i := range units {
		unit := &units[i]
		kindName, ok := completed[unit.key]
		if !ok {
			continue
		}
		if resultKindFromName(kindName) != Success && (!resuming || r.executionConfig.RetryFailed) {
			continue
		}
		record, err := r.store.Get(ctx, runID, unit.key)
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return fmt.Errorf("failed to load cached result: %w", err)
		}
		unit.cached = &record
		reused++
	}
	if reused > 0 {
		logger.Message(ctx, logging.LevelInfo, "reusing %d cached result%s of run: %s", pluralize(countable(reused), runID)...)
	}
	return nil
}

func (r *defaultRunner) processUnit(ctx context.Context, logger logging.Logger, unit *workUnit, fail func(error)) {
	defer r.emitProgressEvent()

	caseLogger := logger.WithContext(fmt.Sprintf("%s: %s: %s: ", unit.target.name, unit.run.cfg.Name, unit.task.Name))

	if unit.cached != nil {
		caseLogger.Message(ctx, logging.LevelInfo, "reusing cached result.")
		*unit.slot = restoreRow(unit)
		return
	}

	row, result := r.computeUnit(ctx, caseLogger, unit)
	*unit.slot = row

	if r.store != nil {
		if err := r.recordRow(ctx, unit, row, result); err != nil {
			caseLogger.Error(ctx, logging.LevelError, err, "failed to record case result")
			fail(err)
		}
	}
}

func (r *defaultRunner) computeUnit(ctx context.Context, logger logging.Logger, unit *workUnit) (row RunResult, result providers.Result) {
	row = RunResult{
		Kind:     Error,
		Task:     unit.task.Name,
		Provider: unit.target.name,
		Run:      unit.run.cfg.Name,
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Message(ctx, logging.LevelError, "task run panicked: %v", p)
			row.Kind = Error
			row.Got = fmt.Sprintf("%v", p)
			row.Details = Details{Error: ErrorDetails{Title: executionErrorTitle, Message: fmt.Sprintf("%v", p)}}
		}
	}()

	task := unit.task
	rules := task.GetResolvedValidationRules()

	validator, err := r.validators.GetValidator(ctx, rules.Judge)
	if err != nil {
		logger.Error(ctx, logging.LevelError, err, "failed to resolve validator")
		row.Got = err.Error()
		row.Details.Error = ErrorDetails{Title: validationErrorTitle, Message: err.Error()}
		return row, result
	}
	row.Want = task.ExpectedResult.Map(func(value interface{}) interface{} {
		return validator.ToCanonical(rules, value)
	})

	logger.Message(ctx, logging.LevelInfo, "starting task...")
	runStart := time.Now()
	result, err = func() (providers.Result, error) {
		if unit.target.serialize {
			unit.target.lock.Lock()
			defer unit.target.lock.Unlock()
		}
		caseCtx := ctx
		if timeout := r.executionConfig.GetTaskTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			caseCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return unit.run.executor.Execute(caseCtx, logger, task)
	}()
	logger.Message(ctx, logging.LevelInfo, "task has finished in %s.", time.Since(runStart))
	row.Duration = result.GetDuration()

	usage := result.GetUsage()
	logger.Message(ctx, logging.LevelDebug, "token usage: [in:%s, out:%s]", logging.FormatLogInt64(usage.InputTokens), logging.FormatLogInt64(usage.OutputTokens))
	logger.Message(ctx, logging.LevelTrace, "prompts:\n%s", logging.FormatLogText(result.GetPrompts()))

	if err != nil {
		logger.Error(ctx, logging.LevelError, err, "task run failed")
		return errorRow(row, result, err), result
	}

	row.Details.Answer = newAnswerDetails(task, result)
	row.Got = utils.FormatValue(validator.ToCanonical(rules, result.GetFinalAnswerContent()))

	assessment, err := validator.IsCorrect(ctx, logger, rules, task.ExpectedResult, result, task.Prompt, task.ResponseResultFormat)
	if err != nil {
		logger.Error(ctx, logging.LevelError, err, "failed to validate the response")
		row.Kind = Error
		row.Details.Error = ErrorDetails{Title: validationErrorTitle, Message: err.Error(), Usage: toTokenUsage(usage)}
		return row, result
	}

	row.Kind = verdictKind(assessment.Verdict)
	row.Details.Validation = newValidationDetails(assessment)
	logger.Message(ctx, logging.LevelInfo, "task result: %s", row.Kind)
	return row, result
}

// errorRow classifies a failed task run and fills in the error details.
func errorRow(row RunResult, result providers.Result, err error) RunResult {
	row.Got = err.Error()
	details := ErrorDetails{Message: err.Error(), Usage: toTokenUsage(result.GetUsage())}
	switch {
	case errors.Is(err, providers.ErrFeatureNotSupported):
		row.Kind = NotSupported
		details.Title = notSupportedTitle
	case errors.Is(err, providers.ErrTokenBudgetExceeded):
		row.Kind = AbortedBudget
		details.Title = tokenBudgetTitle
	case errors.Is(err, providers.ErrTurnBudgetExceeded):
		row.Kind = AbortedIterations
		details.Title = turnBudgetTitle
	default:
		row.Kind = Error
		details.Title = executionErrorTitle
	}
	row.Details.Error = details
	return row
}

func newAnswerDetails(task config.Task, result providers.Result) AnswerDetails {
	return AnswerDetails{
		Title:          result.Title,
		Explanation:    utils.SplitLines(result.Explanation),
		ActualAnswer:   utils.SplitLines(utils.FormatValue(result.GetFinalAnswerContent())),
		ExpectedAnswer: toLines(task.ExpectedResult),
		Usage:          toTokenUsage(result.GetUsage()),
	}
}

func newValidationDetails(assessment validators.ValidationResult) ValidationDetails {
	details := ValidationDetails{
		Title:       assessment.Title,
		Explanation: utils.SplitLines(assessment.Explanation),
	}
	if judgeResult := assessment.GetAssessmentResult(); judgeResult != nil {
		details.Usage = toTokenUsage(judgeResult.GetUsage())
	}
	return details
}

// verdictKind maps a validation verdict to a result kind.
func verdictKind(verdict validators.Verdict) ResultKind {
	switch verdict {
	case validators.VerdictPass:
		return Success
	case validators.VerdictFail:
		return Failure
	case validators.VerdictAmbiguous:
		return Ambiguous
	default:
		return Error
	}
}

func toTokenUsage(usage providers.Usage) TokenUsage {
	return TokenUsage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
}

// restoreRow rebuilds a result row from a previously recorded case.
func restoreRow(unit *workUnit) RunResult {
	record := unit.cached
	return RunResult{
		Kind:     resultKindFromName(record.Kind),
		Task:     unit.task.Name,
		Provider: unit.target.name,
		Run:      unit.run.cfg.Name,
		Got:      record.FinalAnswer,
		Want:     unit.task.ExpectedResult,
		Details: Details{
			Answer: AnswerDetails{
				Title:          cachedResultTitle,
				Explanation:    []string{fmt.Sprintf("Reused a result recorded at %s.", record.CreatedAt.Format(time.RFC3339))},
				ActualAnswer:   utils.SplitLines(record.FinalAnswer),
				ExpectedAnswer: toLines(unit.task.ExpectedResult),
			},
			Validation: ValidationDetails{
				Title:       cachedResultTitle,
				Explanation: []string{"Outcome restored from the result cache."},
			},
		},
		Duration: record.Duration,
	}
}

// recordRow stores the finished case and marks it completed.
// A failure to record is fatal for the run because resumption
// would otherwise silently recompute or lose finished cases.
func (r *defaultRunner) recordRow(ctx context.Context, unit *workUnit, row RunResult, result providers.Result) error {
	record, err := newCaseRecord(r.runID(), unit.key, row, result)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to record case result: %w", err)
	}
	if err := r.store.MarkCompleted(ctx, r.runID(), unit.key, record.Kind); err != nil {
		return fmt.Errorf("failed to mark case completed: %w", err)
	}
	return nil
}

func newCaseRecord(runID string, key string, row RunResult, result providers.Result) (cache.Record, error) {
	conversation, err := json.Marshal(result.GetConversation())
	if err != nil {
		return cache.Record{}, fmt.Errorf("failed to encode conversation: %w", err)
	}
	toolCalls, err := json.Marshal(result.GetToolCalls())
	if err != nil {
		return cache.Record{}, fmt.Errorf("failed to encode tool calls: %w", err)
	}
	return cache.Record{
		RunID:        runID,
		CaseKey:      key,
		Kind:         row.Kind.String(),
		FinalAnswer:  row.Got,
		Conversation: conversation,
		ToolCalls:    toolCalls,
		TokensUsed:   totalTokens(result.GetUsage()),
		Duration:     row.Duration,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// totalTokens sums the reported token counts.
func totalTokens(usage providers.Usage) (total int64) {
	if usage.InputTokens != nil {
		total += *usage.InputTokens
	}
	if usage.OutputTokens != nil {
		total += *usage.OutputTokens
	}
	return total
}

func (r *defaultRunner) runID() string {
	if id := r.executionConfig.RunID; id != "" {
		return id
	}
	return defaultRunID
}

func (r *defaultRunner) resetProgress(total int) {
	r.progressLock.Lock()
	defer r.progressLock.Unlock()
	r.completedTasks = 0
	r.totalTasks = total
}

func (r *defaultRunner) setActiveRun(run *asyncTrialRun) {
	r.activeRunLock.Lock()
	defer r.activeRunLock.Unlock()
	r.activeRun = run
}

func (r *defaultRunner) getActiveRun() *asyncTrialRun {
	r.activeRunLock.RLock()
	defer r.activeRunLock.RUnlock()
	return r.activeRun
}

// emitProgressEvent implements eventEmitter.
func (r *defaultRunner) emitProgressEvent() {
	r.progressLock.Lock()
	r.completedTasks++
	completed, total := r.completedTasks, r.totalTasks
	r.progressLock.Unlock()

	if run := r.getActiveRun(); run != nil && total > 0 {
		run.publishProgress(float32(completed) / float32(total))
	}
}

// emitMessageEvent implements eventEmitter.
func (r *defaultRunner) emitMessageEvent(message string) {
	if run := r.getActiveRun(); run != nil {
		run.publishMessage(message)
	}
}

func (r *defaultRunner) Close(ctx context.Context) {
	for _, target := range r.targets {
		if err := target.provider.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Msgf("%s: failed to close provider", target.name)
		}
	}
	if err := r.validators.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("failed to close validators")
	}
}

// trialResults is the result set of a finished blocking run.
type trialResults struct {
	results Results
}

func (t trialResults) GetResults() Results {
	return t.results
}

// asyncTrialRun is the result set of a run executing in the background.
type asyncTrialRun struct {
	progressEvents chan float32
	messageEvents  chan string
	cancel         context.CancelFunc
	done           chan struct{}
	results        Results
}

// finish publishes the final results and closes the event channels.
func (t *asyncTrialRun) finish(results Results) {
	t.results = results
	close(t.progressEvents)
	close(t.messageEvents)
	close(t.done)
}

func (t *asyncTrialRun) GetResults() Results {
	<-t.done
	return t.results
}

func (t *asyncTrialRun) ProgressEvents() <-chan float32 {
	return t.progressEvents
}

func (t *asyncTrialRun) MessageEvents() <-chan string {
	return t.messageEvents
}

func (t *asyncTrialRun) Cancel() {
	t.cancel()
}

func (t *asyncTrialRun) publishProgress(percent float32) {
	select {
	case t.progressEvents <- percent:
	default: // drop when no listener keeps up
	}
}

func (t *asyncTrialRun) publishMessage(message string) {
	select {
	case t.messageEvents <- message:
	default: // drop when no listener keeps up
	}
}

type countable int

func pluralize(tokens ...any) []interface{} {
	pluralized := make([]interface{}, 0, 2*len(tokens))
	for _, token := range tokens {
		pluralized = append(pluralized, token)
		if v, ok := any(token).(countable); ok {
			switch v {
			case 1:
				pluralized = append(pluralized, "")
			default:
				pluralized = append(pluralized, "s")
			}
		}
	}

	return pluralized
}
