// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package runners

import (
	"context"
	"testing"
	"time"

	"github.com/petmal/genetrial/cache"
	"github.com/petmal/genetrial/config"
	"github.com/petmal/genetrial/pkg/testutils"
	"github.com/petmal/genetrial/pkg/utils"
	"github.com/petmal/genetrial/validators"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRunnerUnknownJudge(t *testing.T) {
	_, err := NewDefaultRunner(context.Background(), []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{
		Judge: config.JudgeSelector{
			Enabled: testutils.Ptr(true),
			Name:    testutils.Ptr("missing-judge"),
		},
	}, []config.JudgeConfig{}, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, validators.ErrJudgeNotFound)
}

func TestRunnerRunRecordsCases(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{RunID: "trial-1"}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	_, err = runner.Run(ctx, []config.Task{
		{
			Name:           "success",
			ExpectedResult: utils.NewValueSet("BRCA2 is located on chromosome 13."),
		},
		{
			Name:           "failure",
			ExpectedResult: utils.NewValueSet("Trisomy 21 causes Down syndrome."),
		},
	})
	require.NoError(t, err)

	keys, err := store.Keys(ctx, "trial-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mock provider/mock/failure", "mock provider/mock/success"}, keys)

	completed, err := store.CompletedCases(ctx, "trial-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"mock provider/mock/failure": "failure",
		"mock provider/mock/success": "success",
	}, completed)

	record, err := store.Get(ctx, "trial-1", "mock provider/mock/success")
	require.NoError(t, err)
	assert.Equal(t, "success", record.Kind)
	assert.Equal(t, "brca2 is located on chromosome 13.", record.FinalAnswer)
	assert.Equal(t, int64(642317), record.TokensUsed)
	assert.Equal(t, 1845*time.Millisecond, record.Duration)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestRunnerRunReusesCachedResults(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	seeded := cache.Record{
		RunID:       "trial-resume",
		CaseKey:     "mock provider/mock/success",
		Kind:        "success",
		FinalAnswer: "karyogram shows 47,xx,+21.",
		Duration:    42 * time.Second,
		CreatedAt:   time.Date(2026, time.February, 11, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, seeded))
	require.NoError(t, store.MarkCompleted(ctx, "trial-resume", seeded.CaseKey, seeded.Kind))

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{
			RunID:     "trial-resume",
			CacheMode: config.CacheModeRead,
		}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	expected := utils.NewValueSet("Karyogram shows 47,XX,+21.")
	got, err := runner.Run(ctx, []config.Task{
		{Name: "success", ExpectedResult: expected},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, Success, result.Kind)
	assert.Equal(t, "karyogram shows 47,xx,+21.", result.Got)
	assert.Equal(t, expected, result.Want)
	assert.Equal(t, 42*time.Second, result.Duration)
	assert.Equal(t, "Cached Result", result.Details.Answer.Title)
	assert.Equal(t, "Cached Result", result.Details.Validation.Title)
	assert.Contains(t, result.Details.Answer.Explanation[0], "2026-02-11T09:30:00Z")
}

func TestRunnerRunRetryFailedRecomputes(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	passed := cache.Record{
		RunID:       "trial-retry",
		CaseKey:     "mock provider/mock/gene location",
		Kind:        "success",
		FinalAnswer: "stale passing answer",
	}
	failed := cache.Record{
		RunID:       "trial-retry",
		CaseKey:     "mock provider/mock/pedigree analysis",
		Kind:        "failure",
		FinalAnswer: "stale failing answer",
	}
	for _, record := range []cache.Record{passed, failed} {
		require.NoError(t, store.Put(ctx, record))
		require.NoError(t, store.MarkCompleted(ctx, record.RunID, record.CaseKey, record.Kind))
	}

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{
			RunID:       "trial-retry",
			CacheMode:   config.CacheModeRead,
			RetryFailed: true,
		}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "gene location", ExpectedResult: utils.NewValueSet("BRCA2 maps to 13q13.1.")},
		{Name: "pedigree analysis", ExpectedResult: utils.NewValueSet("The trait is autosomal dominant.")},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 2)

	// The passing case is reused while the failed one is recomputed.
	assert.Equal(t, "stale passing answer", results[0].Got)
	assert.Equal(t, "the trait is autosomal dominant.", results[1].Got)
	assert.Equal(t, Success, results[1].Kind)

	completed, err := store.CompletedCases(ctx, "trial-retry")
	require.NoError(t, err)
	assert.Equal(t, "success", completed["mock provider/mock/pedigree analysis"])
}

func TestRunnerRunResumeReusesFailedCases(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	failed := cache.Record{
		RunID:       "trial-resume-failed",
		CaseKey:     "mock provider/mock/pedigree analysis",
		Kind:        "failure",
		FinalAnswer: "stale failing answer",
	}
	require.NoError(t, store.Put(ctx, failed))
	require.NoError(t, store.MarkCompleted(ctx, failed.RunID, failed.CaseKey, failed.Kind))

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{
			RunID:     "trial-resume-failed",
			CacheMode: config.CacheModeRead,
		}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "pedigree analysis", ExpectedResult: utils.NewValueSet("The trait is autosomal dominant.")},
	})
	require.NoError(t, err)

	// Resuming an identified run keeps completed cases as they are, even when
	// they did not pass.
	results := got.GetResults()["mock provider"]
	require.Len(t, results, 1)
	assert.Equal(t, Failure, results[0].Kind)
	assert.Equal(t, "stale failing answer", results[0].Got)
}

func TestRunnerRunResumesByRunIDAlone(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	seeded := cache.Record{
		RunID:       "trial-interrupted",
		CaseKey:     "mock provider/mock/gene location",
		Kind:        "success",
		FinalAnswer: "brca2 maps to 13q13.1.",
		Duration:    17 * time.Second,
		CreatedAt:   time.Date(2026, time.March, 2, 18, 15, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, seeded))
	require.NoError(t, store.MarkCompleted(ctx, seeded.RunID, seeded.CaseKey, seeded.Kind))

	// Only the run identifier is supplied; no cache mode. Naming a run with
	// prior progress must be enough to pick up where it left off.
	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{RunID: "trial-interrupted"}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "gene location", ExpectedResult: utils.NewValueSet("BRCA2 maps to 13q13.1.")},
		{Name: "pedigree analysis", ExpectedResult: utils.NewValueSet("The trait is autosomal dominant.")},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 2)

	// The completed case is restored from the cache, the remaining one is executed.
	assert.Equal(t, Success, results[0].Kind)
	assert.Equal(t, "brca2 maps to 13q13.1.", results[0].Got)
	assert.Equal(t, 17*time.Second, results[0].Duration)
	assert.Equal(t, "Cached Result", results[0].Details.Answer.Title)
	assert.Equal(t, Success, results[1].Kind)
	assert.Equal(t, "the trait is autosomal dominant.", results[1].Got)
}

func TestRunnerRunSharedCacheRecomputesFailures(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	failed := cache.Record{
		RunID:       "default",
		CaseKey:     "mock provider/mock/pedigree analysis",
		Kind:        "failure",
		FinalAnswer: "stale failing answer",
	}
	require.NoError(t, store.Put(ctx, failed))
	require.NoError(t, store.MarkCompleted(ctx, failed.RunID, failed.CaseKey, failed.Kind))

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{
			CacheMode: config.CacheModeRead,
		}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "pedigree analysis", ExpectedResult: utils.NewValueSet("The trait is autosomal dominant.")},
	})
	require.NoError(t, err)

	// Without an explicit run identifier, only passing records are reused from
	// the shared cache. The failed record is recomputed.
	results := got.GetResults()["mock provider"]
	require.Len(t, results, 1)
	assert.Equal(t, Success, results[0].Kind)
	assert.Equal(t, "the trait is autosomal dominant.", results[0].Got)
}

func TestRunnerRunClearsCache(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	stale := cache.Record{
		RunID:       "trial-clear",
		CaseKey:     "mock provider/mock/obsolete case",
		Kind:        "failure",
		FinalAnswer: "obsolete answer",
	}
	require.NoError(t, store.Put(ctx, stale))
	require.NoError(t, store.MarkCompleted(ctx, stale.RunID, stale.CaseKey, stale.Kind))

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithCacheStore(store),
		WithExecutionConfig(config.ExecutionConfig{
			RunID:     "trial-clear",
			CacheMode: config.CacheModeClear,
		}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	_, err = runner.Run(ctx, []config.Task{
		{Name: "success", ExpectedResult: utils.NewValueSet("Chromosome 13 is acrocentric.")},
	})
	require.NoError(t, err)

	_, err = store.Get(ctx, "trial-clear", stale.CaseKey)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	record, err := store.Get(ctx, "trial-clear", "mock provider/mock/success")
	require.NoError(t, err)
	assert.Equal(t, "success", record.Kind)
}

func TestRunnerRunWithConcurrency(t *testing.T) {
	ctx := context.Background()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider 1",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
		{
			Name: "mock provider 2",
			Runs: []config.RunConfig{
				{Name: "pass", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithExecutionConfig(config.ExecutionConfig{Concurrency: 4}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	tasks := []config.Task{
		{Name: "success", ExpectedResult: utils.NewValueSet("first")},
		{Name: "failure", ExpectedResult: utils.NewValueSet("second")},
		{Name: "error", ExpectedResult: utils.NewValueSet("third")},
		{Name: "success", ExpectedResult: utils.NewValueSet("fourth")},
		{Name: "not_supported", ExpectedResult: utils.NewValueSet("fifth")},
		{Name: "success", ExpectedResult: utils.NewValueSet("sixth")},
	}

	got, err := runner.Run(ctx, tasks)
	require.NoError(t, err)

	results := got.GetResults()
	require.Len(t, results, 2)

	// Result order must follow the task input order regardless of worker count.
	wantOrder := []string{"success", "failure", "error", "success", "not_supported", "success"}
	for _, provider := range []string{"mock provider 1", "mock provider 2"} {
		require.Len(t, results[provider], len(wantOrder))
		for i, result := range results[provider] {
			assert.Equal(t, wantOrder[i], result.Task)
		}
	}

	wantKinds := []ResultKind{Success, Failure, Error, Success, NotSupported, Success}
	for i, result := range results["mock provider 1"] {
		assert.Equal(t, wantKinds[i], result.Kind)
	}
}

func TestRunnerRunConcurrentCasesOnSameProvider(t *testing.T) {
	ctx := context.Background()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithExecutionConfig(config.ExecutionConfig{Concurrency: 2}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	// Each case only returns once two calls overlap on the provider, so both
	// must be in flight at the same time for the run to pass.
	got, err := runner.Run(ctx, []config.Task{
		{Name: "overlap_2: exon count", ExpectedResult: utils.NewValueSet("CFTR spans 27 exons.")},
		{Name: "overlap_2: locus", ExpectedResult: utils.NewValueSet("CFTR maps to 7q31.2.")},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 2)
	assert.Equal(t, Success, results[0].Kind)
	assert.Equal(t, Success, results[1].Kind)
	assert.Equal(t, "cftr spans 27 exons.", results[0].Got)
	assert.Equal(t, "cftr maps to 7q31.2.", results[1].Got)
}

func TestRunnerRunSerializeRequestsPreventsOverlap(t *testing.T) {
	ctx := context.Background()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name:              "mock provider",
			SerializeRequests: true,
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop(),
		WithExecutionConfig(config.ExecutionConfig{Concurrency: 2}))
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "overlap_2: exon count", ExpectedResult: utils.NewValueSet("CFTR spans 27 exons.")},
		{Name: "overlap_2: locus", ExpectedResult: utils.NewValueSet("CFTR maps to 7q31.2.")},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 2)

	// With requests serialized the two calls can never overlap: the first one
	// waits for a companion that is held back by the provider lock and times
	// out before the second one starts.
	var timedOut int
	for _, result := range results {
		if result.Kind == Error {
			timedOut++
			assert.Contains(t, result.Got, "mock overlap timeout")
		}
	}
	assert.Equal(t, 1, timedOut, "exactly one of the serialized calls should wait in vain for overlap")
}

func TestRunnerRunBudgetAborts(t *testing.T) {
	ctx := context.Background()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer runner.Close(ctx)

	got, err := runner.Run(ctx, []config.Task{
		{Name: "budget_tokens", ExpectedResult: utils.NewValueSet("unused")},
		{Name: "budget_turns", ExpectedResult: utils.NewValueSet("unused")},
	})
	require.NoError(t, err)

	results := got.GetResults()["mock provider"]
	require.Len(t, results, 2)

	assert.Equal(t, AbortedBudget, results[0].Kind)
	assert.Equal(t, "token budget exceeded: mock token budget", results[0].Got)
	assert.Equal(t, "Token Budget Exceeded", results[0].Details.Error.Title)
	assert.Zero(t, results[0].Details.Answer)

	assert.Equal(t, AbortedIterations, results[1].Kind)
	assert.Equal(t, "turn budget exceeded: mock turn budget", results[1].Got)
	assert.Equal(t, "Turn Limit Exceeded", results[1].Details.Error.Title)
	assert.Zero(t, results[1].Details.Answer)
}

func TestRunnerStart(t *testing.T) {
	ctx := context.Background()

	runner, err := NewDefaultRunner(ctx, []config.ProviderConfig{
		{
			Name: "mock provider",
			Runs: []config.RunConfig{
				{Name: "mock", Model: "base-pairs"},
			},
		},
	}, config.ValidationRules{}, []config.JudgeConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer runner.Close(ctx)

	result, err := runner.Start(ctx, []config.Task{
		{Name: "success", ExpectedResult: utils.NewValueSet("Gene dosage is diploid.")},
		{Name: "failure", ExpectedResult: utils.NewValueSet("The variant is pathogenic.")},
	})
	require.NoError(t, err)

	results := result.GetResults() // blocks until the run completes
	require.Len(t, results["mock provider"], 2)
	assert.Equal(t, Success, results["mock provider"][0].Kind)
	assert.Equal(t, Failure, results["mock provider"][1].Kind)

	var lastProgress float32
	for percent := range result.ProgressEvents() {
		assert.GreaterOrEqual(t, percent, lastProgress)
		lastProgress = percent
	}
	assert.Equal(t, float32(1.0), lastProgress)

	var messages []string
	for message := range result.MessageEvents() {
		messages = append(messages, message)
	}
	require.NotEmpty(t, messages)
	assert.Contains(t, messages, "mock provider: mock: success: starting task...")

	// Cancel after completion must be safe and the results must remain available.
	result.Cancel()
	assert.Len(t, result.GetResults()["mock provider"], 2)
}

func TestResultKindNameRoundTrip(t *testing.T) {
	kinds := []ResultKind{Success, Failure, Ambiguous, Error, NotSupported, AbortedBudget, AbortedIterations}
	for _, kind := range kinds {
		assert.Equal(t, kind, resultKindFromName(kind.String()))
	}
	assert.Equal(t, Error, resultKindFromName("no such kind"))
	assert.Equal(t, "<unknown>", ResultKind(99).String())
}

func TestStampBudgets(t *testing.T) {
	cfg := config.ExecutionConfig{MaxTurns: 3, MaxTokens: 5000}

	stamped := stampBudgets(config.RunConfig{Name: "defaulted", Model: "base-pairs"}, cfg)
	assert.Equal(t, 3, stamped.MaxTurns)
	assert.Equal(t, int64(5000), stamped.MaxTokens)

	pinned := stampBudgets(config.RunConfig{Name: "pinned", Model: "base-pairs", MaxTurns: 12, MaxTokens: 100}, cfg)
	assert.Equal(t, 12, pinned.MaxTurns)
	assert.Equal(t, int64(100), pinned.MaxTokens)
}
