package workloads

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"unicode"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
)

// QnAName is the registry name of the question-answering workload.
const QnAName = "qna"

const (
	hashBuckets = 1024
	tokenDim    = 32
	maxAnswers  = 3
)

// Answer is a passage sentence ranked against the question. StartIndex and
// EndIndex are byte offsets into the passage.
type Answer struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
}

type span struct {
	start, end int
}

// QnA ranks the sentences of a passage by similarity to a question using hashed
// token embeddings.
type QnA struct {
	engine   *engine.Context
	seed     int64
	question string
	passage  string

	mu             sync.Mutex
	weights        weightSet
	table          *engine.Tensor
	passagePool    *engine.Tensor
	questionPool   *engine.Tensor
	passageTokens  []int
	questionTokens []int
	sentences      []span
	initialized    bool
}

// NewQnA builds an uninitialized QnA workload.
func NewQnA(e *engine.Context, s Settings) (benchmark.Workload, error) {
	question := strings.TrimSpace(s.Question)
	if question == "" {
		question = defaultQuestion
	}
	passage := s.Passage
	if strings.TrimSpace(passage) == "" {
		passage = defaultPassage
	}
	return &QnA{engine: e, seed: s.Seed, question: question, passage: passage}, nil
}

func (q *QnA) Name() string { return QnAName }

func (q *QnA) Initialized() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialized
}

// Initialize tokenizes the passage and question and allocates the embedding table
// and the mean-pooling matrices.
func (q *QnA) Initialize(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.weights.dispose()
	q.initialized = false

	q.sentences = nil
	q.passageTokens = nil
	var sentenceTokens [][]int
	for _, s := range splitSentences(q.passage) {
		tokens := hashTokens(q.passage[s.start:s.end])
		if len(tokens) == 0 {
			continue
		}
		q.sentences = append(q.sentences, s)
		sentenceTokens = append(sentenceTokens, tokens)
		q.passageTokens = append(q.passageTokens, tokens...)
	}
	if len(q.sentences) == 0 {
		return fmt.Errorf("passage has no sentences")
	}
	q.questionTokens = hashTokens(q.question)
	if len(q.questionTokens) == 0 {
		return fmt.Errorf("question has no words")
	}

	rng := rand.New(rand.NewSource(q.seed))
	var err error
	if q.table, err = q.weights.normal(q.engine, rng, 1, hashBuckets, tokenDim); err != nil {
		return err
	}

	pool := make([]float32, len(q.sentences)*len(q.passageTokens))
	offset := 0
	for i, tokens := range sentenceTokens {
		for j := range tokens {
			pool[i*len(q.passageTokens)+offset+j] = 1 / float32(len(tokens))
		}
		offset += len(tokens)
	}
	if q.passagePool, err = q.weights.values(q.engine, []int{len(q.sentences), len(q.passageTokens)}, pool); err != nil {
		return err
	}

	qpool := make([]float32, len(q.questionTokens))
	for i := range qpool {
		qpool[i] = 1 / float32(len(qpool))
	}
	if q.questionPool, err = q.weights.values(q.engine, []int{1, len(qpool)}, qpool); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		q.weights.dispose()
		return err
	}
	q.initialized = true
	return nil
}

// Invoke scores every sentence against the question and returns the best answers.
func (q *QnA) Invoke(context.Context) (any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.initialized {
		return nil, benchmark.ErrNotInitialized
	}

	e := q.engine
	probs, err := e.Tidy(func() (*engine.Tensor, error) {
		pt, err := e.Gather(q.table, q.passageTokens)
		if err != nil {
			return nil, err
		}
		sentences, err := e.MatMul(q.passagePool, pt)
		if err != nil {
			return nil, err
		}
		qt, err := e.Gather(q.table, q.questionTokens)
		if err != nil {
			return nil, err
		}
		question, err := e.MatMul(q.questionPool, qt)
		if err != nil {
			return nil, err
		}
		st, err := e.Transpose(sentences)
		if err != nil {
			return nil, err
		}
		scores, err := e.MatMul(question, st)
		if err != nil {
			return nil, err
		}
		return e.Softmax(scores)
	})
	if err != nil {
		return nil, err
	}
	scores := probs.Data()
	probs.Dispose()

	var answers []Answer
	for _, r := range topK(scores, maxAnswers) {
		s := q.sentences[r.index]
		answers = append(answers, Answer{
			Text:       q.passage[s.start:s.end],
			Score:      float64(r.score),
			StartIndex: s.start,
			EndIndex:   s.end,
		})
	}
	return answers, nil
}

// splitSentences returns trimmed sentence spans ending at '.', '!' or '?'.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	flush := func(end int) {
		s, e := start, end
		for s < e && unicode.IsSpace(rune(text[s])) {
			s++
		}
		for e > s && unicode.IsSpace(rune(text[e-1])) {
			e--
		}
		if e > s {
			spans = append(spans, span{start: s, end: e})
		}
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			flush(i + 1)
			start = i + 1
		}
	}
	flush(len(text))
	return spans
}

// hashTokens lower-cases text, splits it into words and hashes each word into one
// of hashBuckets embedding rows.
func hashTokens(text string) []int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]int, 0, len(words))
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		tokens = append(tokens, int(h.Sum32()%hashBuckets))
	}
	return tokens
}
