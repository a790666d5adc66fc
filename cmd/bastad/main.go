package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bastagame/basta-client/internal/devserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := devserver.NewServer()
	log.Printf("BASTA dev room service listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, srv.RegisterRoutes()))
}
