// Command journald runs a store-backed HTTP surface over the invocation
// engine, wiring the example invokables in for manual exercising. Grounded
// on the teacher's main.go entrypoint shape.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/reachcore/journal/config"
	"github.com/reachcore/journal/examples/chat"
	"github.com/reachcore/journal/examples/dice"
	"github.com/reachcore/journal/httpadapter"
	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/log"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/store"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, log.LevelInfo).WithComponent("journald")

	reg := registry.New()
	if err := invoke.RegisterTypes(reg); err != nil {
		logger.Error("register engine types", err)
		os.Exit(1)
	}
	if err := dice.RegisterTypes(reg); err != nil {
		logger.Error("register dice types", err)
		os.Exit(1)
	}
	if err := chat.RegisterTypes(reg); err != nil {
		logger.Error("register chat types", err)
		os.Exit(1)
	}

	backend, err := store.NewFileBackend(cfg.StoreRoot, cfg.ShardWidth)
	if err != nil {
		logger.Error("open store", err)
		os.Exit(1)
	}
	st := store.New(backend, reg)

	httpHandler := httpadapter.NewHandler(st, logger)
	httpHandler.Register("roll-die", &dice.Die{})
	httpHandler.Register("roll-dice", &dice.Dice{})
	httpHandler.Register("chat", &chat.Chat{Turns: 1})

	mux := http.NewServeMux()
	mux.Handle("/invoke/", httpHandler)

	logger.Info(fmt.Sprintf("listening on %s, store root %s", cfg.HTTPAddr, cfg.StoreRoot))
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		logger.Error("server exited", err)
		os.Exit(1)
	}
}
