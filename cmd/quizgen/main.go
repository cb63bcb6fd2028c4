package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"flash-quiz/internal/config"
	"flash-quiz/internal/logger"
	"flash-quiz/internal/models"
	"flash-quiz/internal/services"
)

var (
	filePath = flag.String("file", "", "PDF to generate study material from")
	taskName = flag.String("task", "quiz", "Task to run: quiz, flashcards, grouping or study_set")
	outPath  = flag.String("out", "", "Output file (.csv or .xlsx); defaults to <task>.csv")
	apiKey   = flag.String("key", "", "Completion API key (overrides COMPLETION_API_KEY)")
	verbose  = flag.Bool("v", false, "Print generated content for each chunk")
)

func main() {
	flag.Parse()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	if err := run(boldGreen, boldCyan, yellow); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

func run(ok, info, warn func(a ...interface{}) string) error {
	if *filePath == "" {
		return errors.New("-file is required")
	}
	task, valid := models.ParseTask(*taskName)
	if !valid {
		return fmt.Errorf("%w: %q", services.ErrUnknownTask, *taskName)
	}
	out := *outPath
	if out == "" {
		out = string(task) + ".csv"
	}
	ext := strings.ToLower(filepath.Ext(out))
	if ext != ".csv" && ext != ".xlsx" {
		return fmt.Errorf("unsupported output type %q", ext)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogMode).Level(levelFor(*verbose))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := os.Open(*filePath)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer src.Close()

	doc, err := services.NewIngestionService(services.NewPDFService(), log).Ingest(ctx, filepath.Base(*filePath), src)
	if err != nil {
		return err
	}
	chunks := services.ChunkText(doc.Text, task.ChunkSize())
	fmt.Printf("%s %s (%d pages, %d chunks of up to %d words)\n", ok("Loaded"), info(doc.OriginalName), doc.PageCount, len(chunks), task.ChunkSize())

	completer := services.NewAIService(services.AIConfig{
		APIKey:  cfg.CompletionKey,
		BaseURL: cfg.CompletionBaseURL,
		Model:   cfg.CompletionModel,
		Timeout: cfg.CompletionTimeout,
	}, log)
	if !completer.Configured() && strings.TrimSpace(*apiKey) == "" {
		return services.ErrAIUnavailable
	}
	runner := services.NewBatchRunner(completer, services.FixedDelay{Delay: cfg.PacingDelay}, nil, log)

	batch, runErr := runner.Run(ctx, services.RunRequest{
		Task:   task,
		Chunks: chunks,
		APIKey: strings.TrimSpace(*apiKey),
		Progress: func(step, message string, current, total int) {
			fmt.Printf("%s %s\n", info(fmt.Sprintf("[%d/%d]", current, total)), message)
		},
	})

	if *verbose {
		for _, res := range batch.Results {
			fmt.Printf("\n%s\n%s\n", ok(fmt.Sprintf("Chunk %d", res.Index+1)), res.Content)
		}
	}

	if err := writeOutput(out, ext, batch); err != nil {
		return err
	}
	fmt.Printf("%s %d rows to %s\n", ok("Wrote"), len(batch.Results), out)

	if runErr != nil {
		if errors.Is(runErr, services.ErrRateLimited) {
			fmt.Println(warn("Rate limited by the completion service; partial results were saved."))
		}
		return runErr
	}
	return nil
}

func writeOutput(path, ext string, batch *models.BatchRun) error {
	var buf bytes.Buffer
	var err error
	if ext == ".xlsx" {
		err = services.WriteXLSX(&buf, batch)
	} else {
		err = services.WriteCSV(&buf, batch)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func levelFor(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}
