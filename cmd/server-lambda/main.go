package main

import (
	"context"

	"github.com/abhi007singh/legendary-sniffle/app"
	"github.com/abhi007singh/legendary-sniffle/app/config"
	"github.com/abhi007singh/legendary-sniffle/app/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/rs/zerolog/log"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Logs)

	// the container freezes after each response, so batches must go to a queue
	if cfg.QueueURL == "" {
		logger.Fatal().Msg("QUEUE_URL environment variable is required")
	}

	svc, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize service")
	}

	router := svc.APIRouter()
	router.POST("/webhook", svc.Webhook.Receive)
	ginLambda = ginadapter.New(router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
