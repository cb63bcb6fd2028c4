package services

import (
	"encoding/json"
	"fmt"

	"flash-quiz/internal/models"
)

const systemPrompt = "You are an expert tutor creating flashcards and practice test questions."

const quizTemplate = `From the following notes, write 3 multiple-choice questions.
Each question must have exactly 4 answer choices labelled A) to D), and the correct choice must be marked on its own line as "Answer: <letter>".
Write any mathematical expressions in LaTeX between $ delimiters.

Notes:
%s`

const flashcardTemplate = `From the following notes, write 5 flashcards that test active recall.
Format each flashcard as "Q: <question>" followed by "A: <concise answer>" on the next line.
Write any mathematical expressions in LaTeX between $ delimiters.

Notes:
%s`

const groupingTemplate = `The following JSON list holds consecutive sections of a document.
Group the ideas they contain into 3 to 7 themes for a mind map.
For each theme give a short title followed by nested bullet points for its sub-topics, and keep every point under 12 words.

Sections:
%s`

const studySetTemplate = `From the following notes, generate 2 flashcards (Q&A) and 1 multiple-choice question with 4 answer choices and the correct one marked. Notes:
%s`

// BuildPrompt renders the task's instruction around its input. Per-chunk
// tasks take exactly one chunk; grouping takes all of them.
func BuildPrompt(task models.Task, chunks []string) (string, error) {
	if _, ok := models.ParseTask(string(task)); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	if task.PerChunk() && len(chunks) != 1 {
		return "", fmt.Errorf("task %s takes one chunk per prompt, got %d", task, len(chunks))
	}

	switch task {
	case models.TaskQuiz:
		return fmt.Sprintf(quizTemplate, chunks[0]), nil
	case models.TaskFlashcards:
		return fmt.Sprintf(flashcardTemplate, chunks[0]), nil
	case models.TaskStudySet:
		return fmt.Sprintf(studySetTemplate, chunks[0]), nil
	case models.TaskGrouping:
		if chunks == nil {
			chunks = []string{}
		}
		raw, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode grouping sections: %w", err)
		}
		return fmt.Sprintf(groupingTemplate, raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
}
