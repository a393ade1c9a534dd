package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/api"
	api_i "github.com/beka-birhanu/vinom-mazesync/api/i"
	"github.com/beka-birhanu/vinom-mazesync/api/identity"
	nodeapi "github.com/beka-birhanu/vinom-mazesync/api/node"
	"github.com/beka-birhanu/vinom-mazesync/config"
	"github.com/beka-birhanu/vinom-mazesync/infrastruture/redissession"
	"github.com/beka-birhanu/vinom-mazesync/infrastruture/repo"
	"github.com/beka-birhanu/vinom-mazesync/infrastruture/token"
	"github.com/beka-birhanu/vinom-mazesync/logger"
	"github.com/beka-birhanu/vinom-mazesync/placement"
	"github.com/beka-birhanu/vinom-mazesync/service"
	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Global variables for dependencies
var (
	participantID  uuid.UUID
	mongoClient    *mongo.Client
	redisClient    *redis.Client
	layoutArchive  i.LayoutArchive
	sessionService i.SessionService
	redisSession   *redissession.Client
	node           *service.Node
	nodeController api_i.Controller
	jwtTokenizer   i.Tokenizer
	router         *api.Router
	appLogger      *logger.Logger
)

func newLogger(prefix, color string) *logger.Logger {
	l, err := logger.New(prefix, color, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating %s logger: %v\n", prefix, err)
		os.Exit(1)
	}
	if err := l.SetLevel(config.Envs.LogLevel); err != nil {
		l.Warning(fmt.Sprintf("Unknown log level %q, keeping info", config.Envs.LogLevel))
	}
	return l.WithField("participant", participantID.String())
}

func initParticipantID() {
	if config.Envs.ParticipantID == "" {
		participantID = uuid.New()
		return
	}
	id, err := uuid.Parse(config.Envs.ParticipantID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "PARTICIPANT_ID is not a uuid: %v\n", err)
		os.Exit(1)
	}
	participantID = id
}

func initMongo(ctx context.Context) {
	if config.Envs.Archive.MongoURI == "" {
		appLogger.Info("MONGO_URI not set, layout archive disabled")
		return
	}

	var err error
	mongoClient, err = mongo.Connect(ctx, options.Client().ApplyURI(config.Envs.Archive.MongoURI))
	if err != nil {
		appLogger.Error(fmt.Sprintf("Failed to connect to MongoDB: %v", err))
		os.Exit(1)
	}
	if err = mongoClient.Ping(ctx, nil); err != nil {
		appLogger.Error(fmt.Sprintf("MongoDB ping failed: %v", err))
		os.Exit(1)
	}
	appLogger.Info("Connected to MongoDB")

	layoutArchive = repo.NewLayoutRepo(mongoClient, config.Envs.Archive.DBName, "layouts")
	appLogger.Info("Layout archive initialized")
}

func initSession(ctx context.Context) {
	cfg := config.Envs.Session
	switch cfg.Backend {
	case "memory":
		// A private in-process room: this node is the only participant.
		member, err := session.NewHub(1).Join(participantID)
		if err != nil {
			appLogger.Error(fmt.Sprintf("Joining in-memory room: %v", err))
			os.Exit(1)
		}
		sessionService = member
		appLogger.Info("Joined in-memory room")

	case "redis":
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			appLogger.Error(fmt.Sprintf("Redis ping failed: %v", err))
			os.Exit(1)
		}

		var err error
		redisSession, err = redissession.New(redisClient, participantID, redissession.Options{
			Prefix:   cfg.RedisPrefix,
			RoomID:   cfg.RoomID,
			Capacity: cfg.RoomCapacity,
			Lease:    cfg.AuthorityLease,
		}, newLogger("SESSION", config.ColorCyan))
		if err != nil {
			appLogger.Error(fmt.Sprintf("Creating redis session: %v", err))
			os.Exit(1)
		}
		if err := redisSession.Join(ctx); err != nil {
			appLogger.Error(fmt.Sprintf("Joining room %s: %v", cfg.RoomID, err))
			os.Exit(1)
		}
		sessionService = redisSession
		appLogger.Info(fmt.Sprintf("Joined room %s", cfg.RoomID))

	default:
		appLogger.Error(fmt.Sprintf("Unknown SESSION_BACKEND %q", cfg.Backend))
		os.Exit(1)
	}
}

func initNode() {
	seed := config.Envs.Seed
	world := config.Envs.World

	var err error
	node, err = service.NewNode(sessionService, layoutArchive, newLogger("NODE", config.ColorYellow), service.NodeOptions{
		Seed: service.SeedOptions{
			UseFixedSeed:         seed.UseFixedSeed,
			FixedSeed:            seed.FixedSeed,
			ExpectedParticipants: seed.ExpectedParticipants,
			WaitForAllReady:      seed.WaitForAllReady,
			PollInterval:         seed.PollInterval,
		},
		World: service.WorldConfig{
			RoomID:                 config.Envs.Session.RoomID,
			Width:                  world.GridWidth,
			Depth:                  world.GridDepth,
			CellSize:               world.CellSize,
			Entry:                  placement.Point{},
			SpawnProbability:       world.CollectibleSpawnProbability,
			MaxCollectibles:        world.MaxCollectibles,
			MinCollectibleDistance: world.MinCollectibleDistance,
			MidpointCollectible:    world.MidpointCollectible,
			PlaceYOffset:           world.PlaceYOffset,
			ConsumableKey:          world.ConsumableKey,
		},
	})
	if err != nil {
		appLogger.Error(fmt.Sprintf("Creating node: %v", err))
		os.Exit(1)
	}
	appLogger.Info("Node initialized")
}

func initNodeController() {
	var err error
	nodeController, err = nodeapi.NewNodeController(node)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Creating node controller: %v", err))
		os.Exit(1)
	}
	appLogger.Info("Node controller initialized")
}

func initJWTTokenizer() {
	secret := config.Envs.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		appLogger.Warning("JWT_SECRET not set, using a random secret for this run")
	}
	jwtTokenizer = token.NewJwtService(secret, config.Envs.JWTIssuer)

	// The operator token for this node's control API.
	tok, err := jwtTokenizer.IssueParticipant(participantID, 24*time.Hour)
	if err != nil {
		appLogger.Error(fmt.Sprintf("Issuing control token: %v", err))
		os.Exit(1)
	}
	appLogger.Info(fmt.Sprintf("Control token: %s", tok))
}

func initRouter() {
	gin.SetMode(config.Envs.GinMode)
	router = api.NewRouter(api.Config{
		Addr:                    fmt.Sprintf("%s:%v", config.Envs.HostIP, config.Envs.RESTPort),
		BaseURL:                 "/api",
		Controllers:             []api_i.Controller{nodeController},
		AuthorizationMiddleware: identity.Authoriz(jwtTokenizer, participantID),
	})
	appLogger.Info("Router initialized")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initParticipantID()
	appLogger = newLogger("APP", config.ColorGreen)
	appLogger.Info(fmt.Sprintf("Participant %s starting", participantID))

	setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	initMongo(setupCtx)
	initSession(setupCtx)
	cancel()

	initNode()
	initNodeController()
	initJWTTokenizer()
	initRouter()

	g, gctx := errgroup.WithContext(ctx)
	if redisSession != nil {
		g.Go(func() error { return redisSession.Run(gctx) })
	}
	g.Go(func() error { return node.Run(gctx) })
	g.Go(func() error { return router.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(fmt.Sprintf("Stopped: %v", err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := sessionService.Leave(shutdownCtx); err != nil {
		appLogger.Warning(fmt.Sprintf("Leaving room: %v", err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
	appLogger.Info("Participant stopped")
}
