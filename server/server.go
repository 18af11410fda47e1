package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Daskott/tandem/server/auth/key"
	"github.com/Daskott/tandem/server/elevated"
	"github.com/Daskott/tandem/server/events"
	"github.com/Daskott/tandem/server/gstorage"
	"github.com/Daskott/tandem/server/linking"
	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/server/models"
	"github.com/Daskott/tandem/server/ratelimit"
	"github.com/Daskott/tandem/server/twilio"
	"github.com/Daskott/tandem/server/work"
	"github.com/Daskott/tandem/shared"
	"github.com/Daskott/tandem/utils"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

var (
	logg     = logger.Named("server")
	validate *validator.Validate

	authKeyPair *key.KeyPair
	linker      *linking.Orchestrator
)

func init() {
	validate = validator.New()
	if err := RegisterValidators(validate); err != nil {
		logg.Panic(err)
	}
}

// Start runs the tandem api server until it receives SIGINT or SIGTERM
func Start(config *viper.Viper, devMode bool) {
	ctx := context.Background()
	serverConfig := parseServerConfig(config)
	configDir := configDirectory(devMode)

	var err error
	authKeyPair, err = key.NewKeyPairFromRSAPrivateKeyPem(key.SESSION_KEY_ID, serverConfig.Tandem.PrivateKeyPem)
	fatalOnError(err)

	elevatedKeyPair, err := key.NewKeyPairFromRSAPrivateKeyPem(key.ELEVATED_KEY_ID, serverConfig.Elevated.PrivateKeyPem)
	fatalOnError(err)

	jobs := newJobRunner(ctx, serverConfig, configDir)
	if jobs.storage != nil && !utils.FileExist(jobs.sqliteDbPath) {
		fatalOnError(jobs.pullSqliteDb(ctx))
	}

	fatalOnError(models.AutoMigrate(dbConfig(serverConfig, configDir)))

	workerPool := work.NewWorkerAdapter(serverConfig.Tandem.Cron.TimeZone)
	fatalOnError(jobs.register(workerPool))
	fatalOnError(jobs.enqueuePeriodicJobs(workerPool))

	publisher := events.NewPublisher(serverConfig.Kafka.Brokers, serverConfig.Kafka.Topic)
	lookupLimiter := ratelimit.New(serverConfig.Redis)
	proxies, err := ratelimit.NewTrustedProxies(serverConfig.Tandem.TrustedProxies)
	fatalOnError(err)

	var reciprocal linking.ReciprocalWriter
	var reciprocalHandler http.Handler
	if serverConfig.Elevated.URL != "" {
		logg.Infof("Writing reciprocal contacts through %s", serverConfig.Elevated.URL)
		reciprocal = elevated.NewClient(serverConfig.Elevated.URL)
	} else {
		executor := elevated.NewExecutor(elevatedKeyPair)
		reciprocal, reciprocalHandler = executor, executor.Handler()
	}

	linker = linking.NewOrchestrator(nil, reciprocal, elevated.NewIssuer(elevatedKeyPair), publisher, jobNotifier{workerPool})

	server := newHTTPServer(serverConfig.Tandem.Listener.Port, newRouter(lookupLimiter, proxies, reciprocalHandler))
	go serve(server, "tandem server")
	workerPool.Start()

	waitForShutdownSignal()

	workerPool.Stop()
	if jobs.storage != nil {
		if err := jobs.backupSqliteDb(nil); err != nil {
			logg.Error(err)
		}
	}

	shutdown(server, "tandem server")

	if err := closeAll(publisher, lookupLimiter); err != nil {
		logg.Warn(err)
	}
}

// StartElevated runs the reciprocal contact boundary as its own process
func StartElevated(config *viper.Viper, devMode bool) {
	serverConfig := parseServerConfig(config)
	if serverConfig.Elevated.Listener.Port == 0 {
		logg.Fatal("elevated.listener.port is required to run the elevated server")
	}

	elevatedKeyPair, err := key.NewKeyPairFromRSAPrivateKeyPem(key.ELEVATED_KEY_ID, serverConfig.Elevated.PrivateKeyPem)
	fatalOnError(err)

	fatalOnError(models.AutoMigrate(dbConfig(serverConfig, configDirectory(devMode))))

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Handle(elevated.RECIPROCAL_CONTACTS_PATH, elevated.NewExecutor(elevatedKeyPair).Handler()).Methods(http.MethodPost)

	server := newHTTPServer(serverConfig.Elevated.Listener.Port, router)
	go serve(server, "tandem elevated server")

	waitForShutdownSignal()
	shutdown(server, "tandem elevated server")
}

func parseServerConfig(config *viper.Viper) shared.ServerConfig {
	serverConfig := shared.ServerConfig{}
	fatalOnError(config.Unmarshal(&serverConfig))
	fatalOnError(validate.Struct(serverConfig))

	if serverConfig.Database.UsePostgres() && serverConfig.Database.DSN == "" {
		logg.Fatal("database.dsn is required when database.driver is postgres")
	}

	if serverConfig.Google.Storage.EnableSqliteBackupAndSync && serverConfig.Database.UsePostgres() {
		logg.Warn("google.storage.enableSqliteBackupAndSync is ignored when using postgres")
		serverConfig.Google.Storage.EnableSqliteBackupAndSync = false
	}

	return serverConfig
}

func dbConfig(serverConfig shared.ServerConfig, configDir string) models.DBConfig {
	return models.DBConfig{
		Driver:     serverConfig.Database.Driver,
		DSN:        serverConfig.Database.DSN,
		PassPhrase: serverConfig.Sqlite.PassPhrase,
		RootDir:    configDir,
	}
}

func newJobRunner(ctx context.Context, serverConfig shared.ServerConfig, configDir string) *jobRunner {
	jr := &jobRunner{sms: twilio.LogSender{}, storageCfg: serverConfig.Google.Storage}

	smsClient, err := twilio.NewClient(serverConfig.Twilio)
	if err != nil {
		logg.Warnf("new contact notifications will only be logged: %v", err)
	} else {
		jr.sms = smsClient
	}

	if !jr.storageCfg.EnableSqliteBackupAndSync {
		return jr
	}

	jr.sqliteDbPath, err = models.SqliteFilePath(configDir)
	fatalOnError(err)

	jr.storage, err = gstorage.NewGStorage(ctx, serverConfig.Google.ApplicationCredentials)
	fatalOnError(err)

	return jr
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%v", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func waitForShutdownSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
