package bootstrap

import (
	"context"
	"log"

	"aicca-realtime/internal/config"
	"aicca-realtime/internal/connection"
	"aicca-realtime/internal/devserver"
	"aicca-realtime/internal/eventloop"
	"aicca-realtime/internal/notify"
	"aicca-realtime/internal/pkg/clock"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/restclient"
	"aicca-realtime/internal/service"
	"aicca-realtime/internal/session"
	"aicca-realtime/internal/statemachine"
	"aicca-realtime/internal/transfer"

	pktNats "aicca-realtime/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Container holds one client session and everything it runs on.
type Container struct {
	ClientID string

	Loop      *eventloop.Loop
	Store     *session.Store
	Manager   *connection.Manager
	Engine    *transfer.Engine
	Machine   *statemachine.Machine
	ChangeBus *gochannel.GoChannel

	// Services
	SessionService service.ISessionService
	RestClient     *restclient.Client

	natsPub      *pktNats.Publisher
	natsNotifier *notify.Nats
}

func NewContainer(cfg *config.Config, sysLogger logger.ILogger) *Container {
	// 1. Scheduler & transport
	loop := eventloop.New()
	wsLogger := logger.NewIsolatedLogger("logs/transport.log")
	manager := connection.NewManager(
		loop,
		connection.NewWebsocketDialer(wsLogger),
		clock.Real{},
		connection.Config{WSBaseURL: cfg.Client.EffectiveWSURL()},
		wsLogger,
	)

	clientID := cfg.Client.ClientID
	if clientID == "" {
		clientID = manager.GenerateClientID()
	}
	sessionID := cfg.Client.SessionID
	if sessionID == "" {
		sessionID = "ws_" + clientID
	}

	// 2. Change fan-out
	changeBus := notify.NewChangeBus()
	notifiers := notify.Multi{notify.NewWatermill(changeBus, notify.ChangesTopic, sysLogger)}

	var natsPub *pktNats.Publisher
	var natsNotifier *notify.Nats
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			natsPub = pub
			natsNotifier = notify.NewNats(pub, sessionID, sysLogger)
			notifiers = append(notifiers, natsNotifier)
		}
	}

	// 3. Session components
	store := session.NewStore(notifiers)
	engine := transfer.NewEngine(loop, manager, transfer.Config{
		ChunkSize:  cfg.Upload.ChunkSize,
		ChunkDelay: cfg.Upload.ChunkDelay,
		Timeout:    cfg.Upload.Timeout,
	}, sysLogger)
	machine := statemachine.New(store, engine, sysLogger)

	manager.OnState(store.SetConnectionState)
	manager.OnMessage(machine.Handle)

	sessionService := service.NewSessionService(loop, store, machine, manager, engine, sessionID, sysLogger)

	return &Container{
		ClientID:       clientID,
		Loop:           loop,
		Store:          store,
		Manager:        manager,
		Engine:         engine,
		Machine:        machine,
		ChangeBus:      changeBus,
		SessionService: sessionService,
		RestClient:     restclient.NewClient(cfg.Client.APIBaseURL, cfg.Client.RequestTimeout, sysLogger),
		natsPub:        natsPub,
		natsNotifier:   natsNotifier,
	}
}

// NewChangeConsumer subscribes handler to the store's change bus.
func (c *Container) NewChangeConsumer(handler service.ChangeHandler, log logger.ILogger) service.IConsumerService {
	return service.NewConsumerService(c.ChangeBus, notify.ChangesTopic, handler, log)
}

// Close releases the external event infrastructure. Stop the loop first.
func (c *Container) Close() {
	if c.natsNotifier != nil {
		c.natsNotifier.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	c.ChangeBus.Close()
}

// DevServer is the local protocol backend and its infrastructure.
type DevServer struct {
	Server *devserver.Server
	Hub    *devserver.Hub

	rdb *redis.Client
}

func NewDevServer(ctx context.Context, cfg *config.Config, sysLogger logger.ILogger) (*DevServer, error) {
	storage, err := devserver.NewFileStorage(cfg.DevServer.StoragePath)
	if err != nil {
		return nil, err
	}

	// Redis keeps session files visible to every instance; memory otherwise.
	var registry devserver.FileRegistry = devserver.NewMemoryRegistry()
	var rdb *redis.Client
	if cfg.DevServer.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.DevServer.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.DevServer.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v (session files kept in memory)", err)
			rdb.Close()
			rdb = nil
		} else {
			registry = devserver.NewRedisRegistry(rdb)
		}
	}

	wsLogger := logger.NewIsolatedLogger("logs/devserver_ws.log")
	hub := devserver.NewHub(wsLogger)
	go hub.Run(ctx)

	agent := devserver.NewAgent(devserver.NewAssembler(cfg.DevServer.UploadTTL), storage, registry, sysLogger)
	handler := devserver.NewHandler(ctx, hub, agent, storage, sysLogger)

	return &DevServer{
		Server: devserver.NewServer(cfg.DevServer, handler),
		Hub:    hub,
		rdb:    rdb,
	}, nil
}

func (d *DevServer) Close() error {
	err := d.Server.Shutdown()
	if d.rdb != nil {
		d.rdb.Close()
	}
	return err
}
