package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/jukasdrj/alexandria/internal"
)

// cli mirrors the teacher's kong-based command structure: one subcommand
// per runtime mode, sharing the pg/redis/provider flag groups.
type cli struct {
	Serve   serveCmd   `cmd:"" help:"Run the HTTP API server."`
	Worker  workerCmd  `cmd:"" help:"Run the asynq queue worker."`
	Migrate migrateCmd `cmd:"" help:"Apply pending database migrations."`
}

type pgconfig struct {
	PostgresHost     string `default:"localhost" help:"Postgres host."`
	PostgresUser     string `default:"postgres" help:"Postgres user."`
	PostgresPassword string `default:"" help:"Postgres password."`
	PostgresPort     int    `default:"5432" help:"Postgres port."`
	PostgresDatabase string `default:"alexandria" help:"Postgres database to use."`
}

func (c *pgconfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDatabase)
}

type redisconfig struct {
	RedisAddr     string `default:"localhost:6379" help:"Redis address."`
	RedisPassword string `default:"" help:"Redis password."`
	RedisDB       int    `default:"0" help:"Redis logical database."`
}

func (c *redisconfig) client() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
}

func (c *redisconfig) asynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

type providerconfig struct {
	ISBNdbAPIKey      string `env:"ISBNDB_API_KEY" help:"ISBNdb API key (paid provider)."`
	GoogleBooksAPIKey string `env:"GOOGLE_BOOKS_API_KEY" help:"Google Books API key (optional)."`
	AnthropicAPIKey   string `env:"ANTHROPIC_API_KEY" help:"Anthropic API key."`
	AnthropicModel    string `default:"claude-3-5-sonnet-20241022" help:"Anthropic model for book generation."`

	DailyQuotaLimit int `default:"15000" help:"ISBNdb daily call limit."`
	QuotaBuffer     int `default:"2000" help:"Reserved buffer subtracted from the daily limit."`
	BulkCeiling     int `default:"100" help:"Max calls a single bulk operation may consume."`
	CronMultiplier  int `default:"2" help:"Quota multiplier reserved ahead of scheduled jobs."`
}

type objectstoreconfig struct {
	S3Bucket   string `help:"Bucket covers are stored in."`
	S3Region   string `default:"auto" help:"Bucket region."`
	S3Endpoint string `help:"Custom S3-compatible endpoint (R2/MinIO). Empty targets AWS."`
}

type logconfig struct {
	Verbose bool `help:"Increase log verbosity."`
}

func (c *logconfig) apply() {
	internal.SetVerbose(c.Verbose)
}

// buildRegistry wires every provider the same way regardless of subcommand,
// so serve and worker always see an identical capability set.
func buildRegistry(pc providerconfig, httpClient *http.Client, quota *internal.QuotaManager, cache *internal.ByteCache, metrics *internal.CacheMetrics) *internal.Registry {
	reg := internal.NewRegistry()

	isbndbClient := internal.NewClient("isbndb", httpClient, cache, metrics)
	googleClient := internal.NewClient("google_books", httpClient, cache, metrics)
	olClient := internal.NewClient("openlibrary", httpClient, cache, metrics)
	wikidataClient := internal.NewClient("wikidata", httpClient, cache, metrics)

	reg.Register(internal.NewISBNdbProvider(isbndbClient, quota, pc.ISBNdbAPIKey))
	reg.Register(internal.NewGoogleBooksProvider(googleClient, pc.GoogleBooksAPIKey))
	reg.Register(internal.NewOpenLibraryProvider(olClient))
	reg.Register(internal.NewWikidataProvider(wikidataClient))
	if pc.AnthropicAPIKey != "" {
		reg.Register(internal.NewAnthropicProvider(pc.AnthropicAPIKey, anthropic.Model(pc.AnthropicModel)))
	}
	return reg
}

type serveCmd struct {
	pgconfig
	redisconfig
	providerconfig
	objectstoreconfig
	logconfig

	Port int `default:"8788" help:"Port to serve traffic on."`
}

func (s *serveCmd) Run() error {
	s.logconfig.apply()
	ctx := context.Background()

	db, err := internal.NewDB(ctx, s.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	rdb := s.redisconfig.client()
	registry := internal.NewMetrics()
	byteCache, err := internal.NewByteCache(rdb)
	if err != nil {
		return fmt.Errorf("building cache: %w", err)
	}
	cacheMetrics := internal.NewCacheMetrics(registry)

	quota := internal.NewQuotaManager(rdb, "alexandria", s.DailyQuotaLimit, s.QuotaBuffer, s.BulkCeiling, s.CronMultiplier)
	reg := buildRegistry(s.providerconfig, &http.Client{}, quota, byteCache, cacheMetrics)

	persist := internal.NewPersister(db)
	resolver := internal.NewWorkResolver(persist)
	queue := internal.NewQueueClient(s.redisconfig.asynqOpt())
	defer func() { _ = queue.Close() }()

	objects, err := internal.NewObjectStore(ctx, internal.ObjectStoreConfig{
		Bucket: s.S3Bucket, Region: s.S3Region, Endpoint: s.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("configuring object store: %w", err)
	}

	priority := []string{"isbndb", "google_books", "openlibrary"}
	isbnOrch := internal.NewISBNOrchestrator(reg, priority)
	coverOrch := internal.NewCoverOrchestrator(reg, priority)
	metaOrch := internal.NewMetadataOrchestrator(reg, priority)
	pdOrch := internal.NewPublicDomainOrchestrator(reg)
	genOrch := internal.NewGenerateOrchestrator(reg)
	bioOrch := internal.NewAuthorBioOrchestrator(reg, persist)
	harvestSource := internal.NewAuthorsNeedingBioSource(db)
	harvest := internal.NewAuthorHarvestWorkflow(harvestSource, bioOrch, persist, queue)

	newSC := func(r *http.Request) *internal.ServiceContext {
		return internal.NewServiceContext(r.Context(), internal.WithQuota(quota))
	}

	h := internal.NewHandler(internal.HandlerConfig{
		ISBN: isbnOrch, Cover: coverOrch, Metadata: metaOrch, PublicDomain: pdOrch,
		Generate: genOrch, Bios: bioOrch, Harvest: harvest, Persist: persist,
		Resolver: resolver, Quota: quota, Queue: queue, Objects: objects,
		NewServiceContext: newSC,
	})

	mux := h.Routes()
	var handler http.Handler = mux
	handler = internal.Instrument(registry, handler)
	handler = stampede.Handler(1024, 0)(handler)     // Coalesce requests to the same resource.
	handler = middleware.RequestSize(1 << 20)(handler) // Limit request bodies.
	handler = middleware.RedirectSlashes(handler)     // Normalize paths for caching.
	handler = middleware.RequestID(handler)           // Include a request ID header.
	handler = middleware.Recoverer(handler)           // Recover from panics.

	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Handler:  handler,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}
	slog.Info("listening on " + addr)
	return srv.ListenAndServe()
}

type workerCmd struct {
	pgconfig
	redisconfig
	providerconfig
	objectstoreconfig
	logconfig
}

func (w *workerCmd) Run() error {
	w.logconfig.apply()
	ctx := context.Background()

	db, err := internal.NewDB(ctx, w.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	rdb := w.redisconfig.client()
	byteCache, err := internal.NewByteCache(rdb)
	if err != nil {
		return fmt.Errorf("building cache: %w", err)
	}
	cacheMetrics := internal.NewCacheMetrics(internal.NewMetrics())

	quota := internal.NewQuotaManager(rdb, "alexandria", w.DailyQuotaLimit, w.QuotaBuffer, w.BulkCeiling, w.CronMultiplier)
	reg := buildRegistry(w.providerconfig, &http.Client{}, quota, byteCache, cacheMetrics)
	persist := internal.NewPersister(db)
	resolver := internal.NewWorkResolver(persist)
	queue := internal.NewQueueClient(w.redisconfig.asynqOpt())
	defer func() { _ = queue.Close() }()

	objects, err := internal.NewObjectStore(ctx, internal.ObjectStoreConfig{
		Bucket: w.S3Bucket, Region: w.S3Region, Endpoint: w.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("configuring object store: %w", err)
	}

	priority := []string{"isbndb", "google_books", "openlibrary"}
	coverOrch := internal.NewCoverOrchestrator(reg, priority)
	metaOrch := internal.NewMetadataOrchestrator(reg, priority)
	bioOrch := internal.NewAuthorBioOrchestrator(reg, persist)
	harvestSource := internal.NewAuthorsNeedingBioSource(db)
	harvest := internal.NewAuthorHarvestWorkflow(harvestSource, bioOrch, persist, queue)

	baseCtx := func(ctx context.Context) *internal.ServiceContext {
		return internal.NewServiceContext(ctx, internal.WithQuota(quota))
	}

	server, mux := internal.NewQueueWorker(internal.QueueWorkerConfig{
		RedisOpt: w.redisconfig.asynqOpt(),
		EnrichmentHandler: internal.EnrichEditionHandler(metaOrch, coverOrch, resolver, persist, queue, baseCtx),
		CoverHandler:      internal.FetchCoverHandler(coverOrch, objects, persist, baseCtx),
		HarvestHandler:    internal.HarvestStepHandler(harvest, baseCtx),
	})

	slog.Info("worker running")
	return server.Run(mux)
}

type migrateCmd struct {
	pgconfig
	logconfig
}

func (m *migrateCmd) Run() error {
	m.logconfig.apply()
	return internal.Migrate(context.Background(), m.dsn())
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		internal.Log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of what's free, same as the teacher's init().
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
