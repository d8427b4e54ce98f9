package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exam-rag/internal/assessment"
	"exam-rag/internal/chunker"
	"exam-rag/internal/config"
	"exam-rag/internal/db"
	"exam-rag/internal/embedding"
	"exam-rag/internal/helper"
	"exam-rag/internal/ingest"
	"exam-rag/internal/llmservice"
	"exam-rag/internal/storage"
	"exam-rag/internal/vectordb"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	filePath := flag.String("file", "", "Path to the document file to upload and index")
	owner := flag.String("owner", "", "User id the operation runs as")
	docID := flag.String("doc", "", "Document id to generate from or delete")
	query := flag.String("query", "", "Topic to generate an assessment about")
	numQuestions := flag.Int("n", 5, "Number of questions to generate")
	difficulty := flag.String("difficulty", "medium", "Question difficulty")
	types := flag.String("types", "", "Comma-separated question types (default: all)")
	assessmentID := flag.String("assessment", "", "Assessment id to fetch")
	deleteDoc := flag.Bool("delete", false, "Delete the document given by -doc")
	list := flag.Bool("list", false, "List your documents and assessments")
	flag.Parse()

	if *owner == "" {
		log.Fatal().Msg("Please provide a user id with the -owner flag")
	}

	ctx := context.Background()

	switch {
	case *filePath != "":
		uploadAndIndex(ctx, *owner, *filePath)
	case *deleteDoc:
		if *docID == "" {
			log.Fatal().Msg("Please provide the document id with the -doc flag")
		}
		deleteDocument(ctx, *owner, *docID)
	case *query != "":
		if *docID == "" {
			log.Fatal().Msg("Please provide the document id with the -doc flag")
		}
		generateAssessment(ctx, *owner, *docID, *query, *numQuestions, *difficulty, *types)
	case *assessmentID != "":
		fetchAssessment(ctx, *owner, *assessmentID)
	case *list:
		listLibrary(ctx, *owner)
	default:
		log.Fatal().Msg("Please provide one of -file, -query, -assessment, -delete or -list")
	}
}

// app bundles the wired services every command needs.
type app struct {
	cfg        *config.Config
	bun        interface{ Close() error }
	ingest     *ingest.Service
	assessment *assessment.Service
	repo       *db.Repo
}

func buildApp(ctx context.Context) *app {
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	dbClient, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	dbInstance := db.NewDB(dbClient, cfg.Database.Debug)

	if err := db.InitDB(ctx, dbInstance); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	repo := db.NewRepo(dbInstance)

	store, err := storage.NewStore(cfg.Storage.BasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing storage")
	}

	rawEmbedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	embedder := embedding.NewClient(rawEmbedder, cfg.RAG.MaxRetries, time.Duration(cfg.RAG.BaseDelayMS)*time.Millisecond)

	vectors, err := vectordb.NewStore(ctx, &cfg.Vector)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing vector store")
	}

	counter, err := chunker.NewCounter(cfg.RAG.Tokenizer)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing tokenizer")
	}

	ingestSvc := ingest.NewService(repo, store, embedder, vectors, ingest.Config{
		BatchSize: cfg.RAG.BatchSize,
		Chunk: chunker.Options{
			MaxTokens:     cfg.RAG.ChunkTokens,
			OverlapTokens: cfg.RAG.OverlapTokens,
			Counter:       counter,
		},
	})

	model, err := llmservice.NewModel(&cfg.GenLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing generation model")
	}
	assessmentSvc := assessment.NewService(repo, embedder, vectors, llmservice.NewGenerator(model), cfg.RAG.TopK)

	return &app{
		cfg:        cfg,
		bun:        dbInstance,
		ingest:     ingestSvc,
		assessment: assessmentSvc,
		repo:       repo,
	}
}

func uploadAndIndex(ctx context.Context, ownerID, filePath string) {
	a := buildApp(ctx)
	defer a.bun.Close()

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}

	res, err := a.ingest.Upload(ctx, ownerID, filepath.Base(filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Error uploading document")
	}
	log.Info().Str("document_id", res.Document.ID).Str("status", string(res.Document.Status)).Msg("Upload resolved")

	if !res.NeedsProcessing {
		return
	}
	if err := a.ingest.Process(ctx, res.Document.ID, ownerID); err != nil {
		log.Fatal().Err(err).Msg("Error processing document")
	}

	doc, err := a.repo.GetDocument(ctx, res.Document.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching document")
	}
	log.Info().Str("document_id", doc.ID).Str("status", string(doc.Status)).Msg("Ingestion finished")
}

func deleteDocument(ctx context.Context, ownerID, documentID string) {
	a := buildApp(ctx)
	defer a.bun.Close()

	fully, err := a.ingest.Delete(ctx, ownerID, documentID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error deleting document")
	}
	log.Info().Str("document_id", documentID).Bool("fully_deleted", fully).Msg("Document deleted")
}

func generateAssessment(ctx context.Context, ownerID, documentID, query string, numQuestions int, difficulty, types string) {
	a := buildApp(ctx)
	defer a.bun.Close()

	req := &assessment.Request{
		UserID:        ownerID,
		DocumentID:    documentID,
		Query:         query,
		NumQuestions:  numQuestions,
		Difficulty:    difficulty,
		QuestionTypes: splitTypes(types),
	}
	created, err := a.assessment.Create(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating assessment")
	}
	log.Info().Str("assessment_id", created.ID).Msg("Assessment created")

	if err := a.assessment.Generate(ctx, created.ID); err != nil {
		log.Fatal().Err(err).Msg("Error generating assessment")
	}

	printAssessment(ctx, a, ownerID, created.ID)
}

func listLibrary(ctx context.Context, ownerID string) {
	a := buildApp(ctx)
	defer a.bun.Close()

	docs, err := a.repo.ListUserDocuments(ctx, ownerID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing documents")
	}
	log.Info().Int("count", len(docs)).Msg("Documents")
	helper.PrettyPrint(docs)

	assessments, err := a.repo.ListUserAssessments(ctx, ownerID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error listing assessments")
	}
	log.Info().Int("count", len(assessments)).Msg("Assessments")
	helper.PrettyPrint(assessments)
}

func fetchAssessment(ctx context.Context, ownerID, assessmentID string) {
	a := buildApp(ctx)
	defer a.bun.Close()
	printAssessment(ctx, a, ownerID, assessmentID)
}

func printAssessment(ctx context.Context, a *app, ownerID, assessmentID string) {
	full, err := a.assessment.Get(ctx, ownerID, assessmentID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error fetching assessment")
	}

	fmt.Printf("%s [%s]\n\n", full.Title, full.Status)
	for _, q := range full.Questions {
		fmt.Printf("%d. (%s) %s\n", q.Position+1, q.Type, q.Text)
		for _, opt := range q.Options {
			marker := " "
			if opt.IsCorrect {
				marker = "*"
			}
			fmt.Printf("   %s %s\n", marker, opt.Text)
		}
		fmt.Printf("   source: page %d\n\n", q.SourcePage)
	}
}

func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
