package api

import (
	"errors"

	"github.com/fako1024/loadscale/pkg/command"
	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/gofiber/fiber/v2"
)

const defaultMedianSamples = 5

// API denotes a REST API for a scale
type API struct {
	dispatcher    *command.Dispatcher
	router        *fiber.App
	medianSamples int
}

// New instantiates a new API, executing functional options, if any
func New(d *command.Dispatcher, options ...func(*API)) *API {

	api := &API{
		dispatcher:    d,
		medianSamples: defaultMedianSamples,
		router: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
	}

	for _, option := range options {
		option(api)
	}

	// Setup routes
	api.router.Get("/weight", api.handleCommand(func(c *fiber.Ctx) (command.Command, error) {
		return command.GetWeight(), nil
	}))
	api.router.Get("/weight/median", api.handleCommand(func(c *fiber.Ctx) (command.Command, error) {
		return command.GetMedianWeight(c.QueryInt("samples", api.medianSamples)), nil
	}))
	api.router.Get("/raw/median", api.handleCommand(func(c *fiber.Ctx) (command.Command, error) {
		return command.GetRawMedians(c.QueryInt("samples", api.medianSamples)), nil
	}))
	api.router.Post("/shutdown", api.handleCommand(func(c *fiber.Ctx) (command.Command, error) {
		return command.Shutdown(), nil
	}))
	api.router.Post("/command", api.handleCommand(func(c *fiber.Ctx) (command.Command, error) {
		return command.Parse(c.Body())
	}))

	return api
}

// WithMedianSamples sets the number of samples used by median requests that do not
// specify one
func WithMedianSamples(samples int) func(*API) {
	return func(api *API) {
		if samples > 0 {
			api.medianSamples = samples
		}
	}
}

// Listen serves the API on the given endpoint, blocking until Shutdown is called
func (api *API) Listen(endpoint string) error {
	return api.router.Listen(endpoint)
}

// Shutdown stops serving the API
func (api *API) Shutdown() error {
	return api.router.Shutdown()
}

////////////////////////////////////////////////////////////////////////////////

func (api *API) handleCommand(parse func(c *fiber.Ctx) (command.Command, error)) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		cmd, err := parse(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(command.Response{
				Error: err.Error(),
			})
		}

		resp, err := api.dispatcher.Handle(c.UserContext(), cmd)
		return c.Status(statusCode(err)).JSON(resp)
	}
}

func statusCode(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case command.IsInputError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, scale.ErrClosed):
		return fiber.StatusGone
	}

	return fiber.StatusServiceUnavailable
}
