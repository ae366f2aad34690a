package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/core/rag"
	"github.com/kolade-dev/pagetutor/internal/models"
)

// seedQuery casts a wide net over the document so quiz questions sample the
// whole text rather than one topic.
const seedQuery = "concepts laws principles formulas definitions examples problems solutions"

var fallbackQueries = []string{
	"text content information data",
	"chapter section paragraph",
	"content material information",
}

var (
	ErrNoQuizContent    = errors.New("no content available for quiz generation")
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentNotReady = errors.New("document not ready")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrInvalidConfig    = errors.New("invalid quiz config")
)

// QuizService generates question sets grounded in retrieved chunks and
// scores submitted answers.
type QuizService struct {
	db        core.DbClient
	retriever *rag.Retriever
	llm       core.LLMProvider
}

func NewQuizService(db core.DbClient, retriever *rag.Retriever, llm core.LLMProvider) *QuizService {
	return &QuizService{db: db, retriever: retriever, llm: llm}
}

type GeneratedQuiz struct {
	QuizID    string            `json:"quizId"`
	Questions []models.Question `json:"questions"`
}

func (s *QuizService) Generate(ctx context.Context, userID, documentID string, cfg models.QuizConfig) (*GeneratedQuiz, error) {
	if cfg.MCQ < 0 || cfg.SAQ < 0 || cfg.LAQ < 0 || cfg.MCQ+cfg.SAQ+cfg.LAQ == 0 {
		return nil, ErrInvalidConfig
	}

	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != models.StatusReady && doc.Status != models.StatusPartial {
		return nil, ErrDocumentNotReady
	}

	chunks, err := s.collectContext(ctx, documentID)
	if err != nil {
		return nil, err
	}

	difficulty := cfg.Difficulty
	if difficulty == "auto" || difficulty == "" {
		difficulty = s.autoDifficulty(ctx, userID, documentID)
	}

	questions, err := s.synthesize(ctx, chunks, cfg, difficulty)
	if err != nil {
		return nil, err
	}

	clampPages(questions, doc.PageCount)

	stored := models.StoredQuiz{QuizConfig: cfg, Questions: questions}
	stored.Difficulty = difficulty
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	quiz := &models.Quiz{
		ID:         uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		Config:     raw,
	}
	if err := s.db.CreateQuiz(ctx, quiz); err != nil {
		return nil, fmt.Errorf("store quiz: %w", err)
	}

	return &GeneratedQuiz{QuizID: quiz.ID, Questions: questions}, nil
}

// collectContext gathers chunks to ground the quiz. It tries the seed query,
// then broader fallback queries, then a direct fetch of any stored chunks.
func (s *QuizService) collectContext(ctx context.Context, documentID string) ([]models.RetrievedChunk, error) {
	chunks, err := s.retriever.Retrieve(ctx, documentID, seedQuery, 10, rag.DefaultProbes)
	if err != nil {
		return nil, err
	}
	for _, q := range fallbackQueries {
		if len(chunks) > 0 {
			break
		}
		chunks, _ = s.retriever.Retrieve(ctx, documentID, q, 10, rag.DefaultProbes)
	}
	if len(chunks) == 0 {
		stored, err := s.db.GetChunksByDocument(ctx, documentID, 10)
		if err != nil {
			return nil, err
		}
		for _, ch := range stored {
			chunks = append(chunks, models.RetrievedChunk{
				ID:         ch.ID,
				DocumentID: ch.DocumentID,
				Page:       ch.Page,
				LineStart:  ch.LineStart,
				LineEnd:    ch.LineEnd,
				Text:       ch.Text,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoQuizContent
	}
	return chunks, nil
}

func (s *QuizService) autoDifficulty(ctx context.Context, userID, documentID string) string {
	scores, err := s.db.ListRecentAttemptScores(ctx, userID, documentID, 5)
	if err != nil || len(scores) == 0 {
		return "medium"
	}
	var sum float64
	for _, sc := range scores {
		sum += sc
	}
	avg := sum / float64(len(scores))
	switch {
	case avg >= 0.8:
		return "hard"
	case avg >= 0.6:
		return "medium"
	default:
		return "easy"
	}
}

const quizSystemPrompt = `You are an expert tutor creating educational quizzes. Generate questions based ONLY on the provided document content. Each question must be directly answerable from the given context.

Requirements:
- MCQ: 4 options, only one correct
- SAQ: 2-3 sentence answers expected
- LAQ: 5-10 sentence answers expected
- Include page citations for each question
- Extract topic from question content
- Provide clear explanations
- Ensure questions test understanding, not memorization

Return JSON format:
{
  "questions": [
    {
      "type": "mcq|saq|laq",
      "question": "string",
      "options": ["string"] (only for MCQ),
      "correctAnswer": "string",
      "explanation": "string",
      "page": number,
      "lineStart": number (optional),
      "lineEnd": number (optional),
      "topic": "string"
    }
  ]
}`

func (s *QuizService) synthesize(ctx context.Context, chunks []models.RetrievedChunk, cfg models.QuizConfig, difficulty string) ([]models.Question, error) {
	var ctxBlock strings.Builder
	for i, ch := range chunks {
		header := fmt.Sprintf("[Chunk %d | Page %d", i+1, ch.Page)
		if ch.LineStart != nil && ch.LineEnd != nil {
			header += fmt.Sprintf(", Lines %d-%d", *ch.LineStart, *ch.LineEnd)
		}
		header += "]"
		ctxBlock.WriteString(header + "\n" + ch.Text + "\n\n")
	}

	userPrompt := fmt.Sprintf(`Generate a quiz with:
- %d MCQ questions
- %d SAQ questions
- %d LAQ questions
- Difficulty: %s

Document content:
%s

Focus on the key concepts and principles from the content.`, cfg.MCQ, cfg.SAQ, cfg.LAQ, difficulty, ctxBlock.String())

	text, err := s.llm.Generate(ctx, quizSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("quiz generation: %w", err)
	}

	var parsed struct {
		Questions []models.Question `json:"questions"`
	}
	if err := unmarshalLLMJSON(text, &parsed); err != nil {
		return nil, fmt.Errorf("quiz response parse: %w", err)
	}
	if len(parsed.Questions) == 0 {
		return nil, errors.New("model returned no questions")
	}

	for i := range parsed.Questions {
		parsed.Questions[i].ID = i + 1
		if parsed.Questions[i].Topic == "" {
			parsed.Questions[i].Topic = "General"
		}
	}
	return parsed.Questions, nil
}

func clampPages(questions []models.Question, pageCount *int) {
	for i := range questions {
		p := questions[i].Page
		if p < 1 {
			p = 1
		}
		if pageCount != nil && *pageCount > 0 && p > *pageCount {
			p = *pageCount
		}
		questions[i].Page = p
	}
}

// Evaluation

type QuestionFeedback struct {
	QuestionID    int    `json:"questionId"`
	Correct       bool   `json:"correct"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback,omitempty"`
}

type QuizResults struct {
	Score      int                `json:"score"`
	TotalScore int                `json:"totalScore"`
	Percentage int                `json:"percentage"`
	Feedback   []QuestionFeedback `json:"feedback"`
}

func (s *QuizService) Evaluate(ctx context.Context, userID, quizID string, answers map[int]string, timeTaken int) (*QuizResults, error) {
	quiz, err := s.db.GetQuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz == nil || quiz.UserID != userID {
		return nil, ErrQuizNotFound
	}

	var stored models.StoredQuiz
	if err := json.Unmarshal(quiz.Config, &stored); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}

	total := len(stored.Questions)
	results := &QuizResults{TotalScore: total}

	for _, q := range stored.Questions {
		userAnswer := answers[q.ID]

		var (
			correct  bool
			feedback string
		)
		switch q.Type {
		case "mcq":
			correct = evaluateMCQ(userAnswer, q.CorrectAnswer)
		case "saq":
			correct, feedback = s.evaluateFreeText(ctx, saqRubric(q.Question, q.CorrectAnswer, userAnswer), userAnswer, q.CorrectAnswer)
		case "laq":
			correct, feedback = s.evaluateFreeText(ctx, laqRubric(q.Question, q.CorrectAnswer, userAnswer), userAnswer, q.CorrectAnswer)
		default:
			feedback = "Unknown question type"
		}

		score := 0
		if correct {
			score = 1
		}
		results.Score += score
		results.Feedback = append(results.Feedback, QuestionFeedback{
			QuestionID:    q.ID,
			Correct:       correct,
			UserAnswer:    userAnswer,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			Score:         score,
			Feedback:      feedback,
		})
	}

	if total > 0 {
		results.Percentage = results.Score * 100 / total
	}

	if err := s.recordAttempt(ctx, userID, quizID, answers, timeTaken, results); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("recording quiz attempt failed")
	}

	return results, nil
}

func (s *QuizService) recordAttempt(ctx context.Context, userID, quizID string, answers map[int]string, timeTaken int, results *QuizResults) error {
	questionScores := make([]int, 0, len(results.Feedback))
	for _, f := range results.Feedback {
		questionScores = append(questionScores, f.Score)
	}
	details, err := json.Marshal(map[string]any{
		"answers":        answers,
		"timeTaken":      timeTaken,
		"questionScores": questionScores,
	})
	if err != nil {
		return err
	}

	attempt := &models.QuizAttempt{
		ID:      uuid.NewString(),
		QuizID:  quizID,
		UserID:  userID,
		Score:   results.Score,
		Details: details,
	}
	if err := s.db.CreateQuizAttempt(ctx, attempt); err != nil {
		return err
	}

	rows := make([]models.Answer, 0, len(results.Feedback))
	for _, f := range results.Feedback {
		rows = append(rows, models.Answer{
			ID:            uuid.NewString(),
			AttemptID:     attempt.ID,
			QuestionIndex: f.QuestionID,
			UserAnswer:    f.UserAnswer,
			CorrectAnswer: f.CorrectAnswer,
			IsCorrect:     f.Correct,
		})
	}
	if err := s.db.InsertAnswers(ctx, rows); err != nil {
		return err
	}

	return s.updateProgress(ctx, userID, results)
}

type progressMetrics struct {
	TotalQuizzes int     `json:"totalQuizzes"`
	AverageScore float64 `json:"averageScore"`
	Streak       int     `json:"streak"`
	LastQuizDate string  `json:"lastQuizDate"`
}

func (s *QuizService) updateProgress(ctx context.Context, userID string, results *QuizResults) error {
	var metrics progressMetrics
	if raw, err := s.db.GetProgressMetrics(ctx, userID); err == nil && raw != nil {
		_ = json.Unmarshal(raw, &metrics)
	}

	fraction := 0.0
	if results.TotalScore > 0 {
		fraction = float64(results.Score) / float64(results.TotalScore)
	}
	metrics.AverageScore = (metrics.AverageScore*float64(metrics.TotalQuizzes) + fraction) / float64(metrics.TotalQuizzes+1)
	metrics.TotalQuizzes++
	if fraction >= 0.5 {
		metrics.Streak++
	} else {
		metrics.Streak = 0
	}
	metrics.LastQuizDate = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	return s.db.UpsertProgressMetrics(ctx, userID, raw)
}

// Scoring helpers

func evaluateMCQ(userAnswer, correctAnswer string) bool {
	return strings.EqualFold(strings.TrimSpace(userAnswer), strings.TrimSpace(correctAnswer))
}

// evaluateFreeText asks the model to score against a rubric and falls back
// to keyword overlap when the model is unavailable or returns garbage.
// Either way the result collapses to correct/incorrect at the 0.5 line.
func (s *QuizService) evaluateFreeText(ctx context.Context, rubricPrompt, userAnswer, correctAnswer string) (bool, string) {
	text, err := s.llm.Generate(ctx, "", rubricPrompt)
	if err == nil {
		var eval struct {
			Score        *float64 `json:"score"`
			OverallScore *float64 `json:"overallScore"`
			Feedback     string   `json:"feedback"`
		}
		if perr := unmarshalLLMJSON(text, &eval); perr == nil {
			score := eval.Score
			if score == nil {
				score = eval.OverallScore
			}
			if score != nil && *score >= 0 && *score <= 1 {
				fb := eval.Feedback
				if fb == "" {
					fb = "No feedback provided"
				}
				return *score >= 0.5, fb
			}
		}
	}

	kw := keywordScore(userAnswer, correctAnswer)
	return kw >= 0.5, "Evaluated by keyword matching"
}

func saqRubric(question, correctAnswer, userAnswer string) string {
	return fmt.Sprintf(`Evaluate this short answer question:

Question: %s
Correct Answer: %s
Student Answer: %s

Rate the student's answer on a scale of 0-1 where:
- 1.0 = Perfect answer, covers all key points
- 0.8-0.9 = Good answer, minor details missing
- 0.6-0.7 = Partially correct, some key points covered
- 0.4-0.5 = Some understanding, major gaps
- 0.0-0.3 = Incorrect or very incomplete

Return JSON: {"score": number, "feedback": "string"}`, question, correctAnswer, userAnswer)
}

func laqRubric(question, correctAnswer, userAnswer string) string {
	return fmt.Sprintf(`Evaluate this long answer question using a detailed rubric:

Question: %s
Model Answer: %s
Student Answer: %s

Rubric (40/40/20):
- Content (40%%): Accuracy, depth, key concepts covered
- Clarity (40%%): Organization, explanation quality, logical flow
- Completeness (20%%): Addresses all parts of question

Rate each dimension 0-1, then calculate weighted average.

Return JSON: {"contentScore": number, "clarityScore": number, "completenessScore": number, "overallScore": number, "feedback": "string"}`, question, correctAnswer, userAnswer)
}

// keywordScore is the share of words the answers have in common, relative
// to the longer answer.
func keywordScore(userAnswer, correctAnswer string) float64 {
	userWords := strings.Fields(strings.ToLower(userAnswer))
	correctWords := strings.Fields(strings.ToLower(correctAnswer))
	if len(userWords) == 0 || len(correctWords) == 0 {
		return 0
	}

	correctSet := make(map[string]struct{}, len(correctWords))
	for _, w := range correctWords {
		correctSet[w] = struct{}{}
	}
	common := 0
	for _, w := range userWords {
		if _, ok := correctSet[w]; ok {
			common++
		}
	}

	longest := len(userWords)
	if len(correctWords) > longest {
		longest = len(correctWords)
	}
	return float64(common) / float64(longest)
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// unmarshalLLMJSON extracts the outermost JSON object from a model response
// that may be wrapped in prose or markdown fences, retrying once with
// trailing commas stripped.
func unmarshalLLMJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return errors.New("no JSON object in response")
	}
	raw := text[start : end+1]

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	cleaned := trailingCommaRe.ReplaceAllString(raw, "$1")
	return json.Unmarshal([]byte(cleaned), v)
}
