// Player API tests in squidElim.

package player

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/PsychoGas/squidElim/internal/auth"
	"github.com/PsychoGas/squidElim/internal/elimination"
	"github.com/PsychoGas/squidElim/internal/entity"
	"github.com/PsychoGas/squidElim/internal/errors"
	"github.com/PsychoGas/squidElim/internal/test"
	"github.com/PsychoGas/squidElim/pkg/db"
	"github.com/PsychoGas/squidElim/pkg/log"
	"github.com/PsychoGas/squidElim/pkg/validations"

	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during player API testing.
var logger log.Logger

// Global instance of gin MockRouter to be used during player API testing.
var mockRouter *gin.Engine

// Global instance of Db instance to be used during player API testing.
var client *db.RedisDB

// Global instance of player Repository to be used during player API testing.
var playerRepo Repository

// Global instance of the elimination Publisher wired into the service under test.
var publisher *elimination.Publisher

// Global context
var ctx context.Context = context.Background()

// Player testdata structure, helps in unmarshalling testdata/player.json
type PlayerTestData struct {
	RegisterPlayerInvalid map[string]*struct {
		Body         map[string]interface{} `json:"body,omitempty"`
		WantResponse []int                  `json:"response"`
	} `json:"register_player_invalid"`
	RegisterPlayerValid map[string]*struct {
		Body         map[string]interface{} `json:"body,omitempty"`
		WantResponse []int                  `json:"response"`
	} `json:"register_player_valid"`
}

// PlayerTestData struct variable which stores unmarshalled all of the testdata for player tests.
var testdata *PlayerTestData

// Request headers accepted by the operator-gated elimination endpoint.
var operatorHeaders map[string]string

// Helper to build up a mock router instance for testing squidElim.
func setupMockRouter(dbConnWrp *db.RedisDB, logger log.Logger) {
	// Mock router instance
	mockRouter = test.MockRouter()

	// Repositories and services needed by player APIs to work
	playerRepo = NewRepository(dbConnWrp)
	publisher = elimination.NewPublisher(logger)
	playerService := NewService(playerRepo, publisher, logger)

	// Register internal package player handlers with the real operator gate
	operatorGate := auth.OperatorMiddleware(logger, os.Getenv("OPERATOR_PIN"))
	APIHandlers(mockRouter, playerService, operatorGate, logger)
}

// Helper to register a player through the repository and return its number.
func registerTestPlayer(t *testing.T, name string) uint64 {
	player, dberr := playerRepo.SetPlayer(ctx, logger, entity.Player{
		Name:      name,
		Avatar:    entity.DefaultAvatar,
		CreatedAt: time.Now().UnixMilli(),
	})
	if dberr != nil {
		// Issues in SetPlayer()
		t.Fatalf("Couldn't create test player %s: %v", name, dberr)
	}
	return player.PlayerNumber
}

// Initializes resources needed before player API tests.
func setup() {
	// Initializing Resources before test run

	// Load test.env
	enverr := godotenv.Load("../../config/test.env")
	if enverr != nil {
		// Error during loading test.env, abort test run immediately
		os.Exit(4)
	}
	version := os.Getenv("VERSION")

	// Logger
	logger = log.New(version)

	// Db client instance
	var dberr error
	client, dberr = db.NewDbConnection(ctx, logger)
	// Sending a PING request to DB for connection status check
	if dberr != nil || client.CheckDbConnection(ctx, logger) != nil {
		// connection failure
		os.Exit(6)
	}
	// Initializing validator
	govalidator.SetFieldsRequiredByDefault(true)
	// Adding custom validation tags into ext-package govalidator
	validations.RegisterCustomValidations(ctx, logger)
	RegisterCustomValidations(ctx, logger)

	// Initializing router
	setupMockRouter(client, logger)

	// Headers which pass the operator gate
	operatorHeaders = map[string]string{
		"Content-Type":   "application/json",
		"X-Operator-Pin": os.Getenv("OPERATOR_PIN"),
	}

	// Read testdata and unmarshall into PlayerTestData
	datafilebytes, oserr := os.ReadFile("../../testdata/player.json")
	if oserr != nil {
		// Error during reading testdata/player.json
		logger.Fatal().Err(oserr).Msg("Couldn't read testdata/player.json, Aborting test run.")
	}
	mrsherr := json.Unmarshal(datafilebytes, &testdata)
	if mrsherr != nil {
		// Error during unmarshalling into PlayerTestData
		logger.Fatal().Err(mrsherr).Msg("Couldn't unmarshall into PlayerTestData, Aborting test run.")
	}

	logger.Info().Msg("Test resources setup successful.")
}

// Cleans up the resources built during execution of setup().
func teardown() {
	logger.Info().Msg("Cleaning up resources ...")
	if client.CheckDbConnection(ctx, logger) == nil {
		// client still open
		client.CleanTestDbData(ctx, logger)
		client.CloseDbConnection(ctx)
	}
	logger.Info().Msg("Cleanup complete :)")
}

func TestMain(m *testing.M) {
	// Setting up Resources
	setup()
	// Running the tests
	testExitCode := m.Run()
	// Cleanup Resources
	teardown()
	// Exit
	os.Exit(testExitCode)
}

func TestRegisterPlayerInvalid(t *testing.T) {
	for name, data := range testdata.RegisterPlayerInvalid {
		data := data
		t.Run(name, func(t *testing.T) {
			body, mrsherr := json.Marshal(data.Body)
			if mrsherr != nil {
				logger.Error().Err(mrsherr).Msg("Couldn't marshall testdata body in TestRegisterPlayerInvalid()")
				t.Fatal()
			}
			request := test.RequestAPITest{
				Method:       http.MethodPost,
				Path:         "/api/players/register",
				Body:         bytes.NewReader(body),
				WantResponse: data.WantResponse,
				Headers:      map[string]string{"Content-Type": "application/json"},
			}
			test.ExecuteAPITest(logger, t, mockRouter, request)
		})
	}
}

func TestRegisterPlayerValid(t *testing.T) {
	for name, data := range testdata.RegisterPlayerValid {
		data := data
		t.Run(name, func(t *testing.T) {
			body, mrsherr := json.Marshal(data.Body)
			if mrsherr != nil {
				logger.Error().Err(mrsherr).Msg("Couldn't marshall testdata body in TestRegisterPlayerValid()")
				t.Fatal()
			}
			request := test.RequestAPITest{
				Method:       http.MethodPost,
				Path:         "/api/players/register",
				Body:         bytes.NewReader(body),
				WantResponse: data.WantResponse,
				Headers:      map[string]string{"Content-Type": "application/json"},
			}
			w := test.ExecuteAPITest(logger, t, mockRouter, request)

			player := entity.Player{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
			assert.NotZero(t, player.PlayerNumber)
			assert.False(t, player.Eliminated)
			assert.NotEmpty(t, player.Avatar)
		})
	}
}

func TestRegisterExistingNameReturnsExistingPlayer(t *testing.T) {
	body := []byte(`{"name": "Kang Sae byeok"}`)
	request := test.RequestAPITest{
		Method:       http.MethodPost,
		Path:         "/api/players/register",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusCreated},
		Headers:      map[string]string{"Content-Type": "application/json"},
	}
	w := test.ExecuteAPITest(logger, t, mockRouter, request)
	created := entity.Player{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Same name again doesn't mint a new player number
	request = test.RequestAPITest{
		Method:       http.MethodPost,
		Path:         "/api/players/register",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusOK},
		Headers:      map[string]string{"Content-Type": "application/json"},
	}
	w = test.ExecuteAPITest(logger, t, mockRouter, request)
	existing := entity.Player{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &existing))
	assert.Equal(t, created.PlayerNumber, existing.PlayerNumber)
}

func TestConcurrentRegistrationSameNameMintsOneNumber(t *testing.T) {
	body := []byte(`{"name": "Seong Gi hun"}`)

	// Two racing registrations of the same display name resolve to one record
	numbers := make(chan uint64, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			request := test.RequestAPITest{
				Method:       http.MethodPost,
				Path:         "/api/players/register",
				Body:         bytes.NewReader(body),
				WantResponse: []int{http.StatusCreated, http.StatusOK},
				Headers:      map[string]string{"Content-Type": "application/json"},
			}
			w := test.ExecuteAPITest(logger, t, mockRouter, request)
			player := entity.Player{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &player))
			numbers <- player.PlayerNumber
		}()
	}
	wg.Wait()
	close(numbers)

	got := []uint64{}
	for number := range numbers {
		got = append(got, number)
	}
	assert.Len(t, got, 2)
	assert.Equal(t, got[0], got[1])
}

func TestListPlayersSnapshot(t *testing.T) {
	number := registerTestPlayer(t, "Ali Abdul")

	request := test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/players",
		Body:         bytes.NewReader([]byte{}),
		WantResponse: []int{http.StatusOK},
	}
	w := test.ExecuteAPITest(logger, t, mockRouter, request)

	roster := []entity.Player{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	found := false
	for _, player := range roster {
		if player.PlayerNumber == number {
			found = true
			assert.Equal(t, "Ali Abdul", player.Name)
			assert.False(t, player.Eliminated)
		}
	}
	assert.True(t, found)
}

func TestEliminatePlayer(t *testing.T) {
	number := registerTestPlayer(t, "Oh Il nam")
	body, _ := json.Marshal(map[string]uint64{"playerNumber": number})

	// First elimination succeeds and returns the updated record
	request := test.RequestAPITest{
		Method:       http.MethodPatch,
		Path:         "/api/players",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusOK},
		Headers:      operatorHeaders,
	}
	w := test.ExecuteAPITest(logger, t, mockRouter, request)
	eliminated := entity.Player{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &eliminated))
	assert.True(t, eliminated.Eliminated)
	assert.NotZero(t, eliminated.EliminatedAt)

	// Second attempt on the same player is a benign conflict
	request = test.RequestAPITest{
		Method:       http.MethodPatch,
		Path:         "/api/players",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusConflict},
		Headers:      operatorHeaders,
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestEliminateUnknownPlayer(t *testing.T) {
	body := []byte(`{"playerNumber": 999999}`)
	request := test.RequestAPITest{
		Method:       http.MethodPatch,
		Path:         "/api/players",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusNotFound},
		Headers:      operatorHeaders,
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestEliminateRequiresOperatorPin(t *testing.T) {
	number := registerTestPlayer(t, "Hwang Jun ho")
	body, _ := json.Marshal(map[string]uint64{"playerNumber": number})

	request := test.RequestAPITest{
		Method:       http.MethodPatch,
		Path:         "/api/players",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusUnauthorized},
		Headers:      map[string]string{"Content-Type": "application/json"},
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestEliminateBadRequest(t *testing.T) {
	for name, body := range map[string][]byte{
		"malformed_body":  []byte(`{"playerNumber": "three"}`),
		"missing_number":  []byte(`{}`),
		"zero_number":     []byte(`{"playerNumber": 0}`),
		"negative_number": []byte(`{"playerNumber": -3}`),
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			request := test.RequestAPITest{
				Method:       http.MethodPatch,
				Path:         "/api/players",
				Body:         bytes.NewReader(body),
				WantResponse: []int{http.StatusBadRequest},
				Headers:      operatorHeaders,
			}
			test.ExecuteAPITest(logger, t, mockRouter, request)
		})
	}
}

func TestEliminateBroadcastsExactlyOnce(t *testing.T) {
	subscriber := publisher.Subscribe()
	defer publisher.Unsubscribe(subscriber)
	number := registerTestPlayer(t, "Han Mi nyeo")
	body, _ := json.Marshal(map[string]uint64{"playerNumber": number})

	request := test.RequestAPITest{
		Method:       http.MethodPatch,
		Path:         "/api/players",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusOK},
		Headers:      operatorHeaders,
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)

	// The broadcast happened before the success response was written
	select {
	case event := <-subscriber.Channel:
		assert.Equal(t, number, event.PlayerNumber)
	default:
		t.Fatal("No elimination event was broadcasted")
	}
	select {
	case event := <-subscriber.Channel:
		t.Fatalf("Unexpected second broadcast: %+v", event)
	default:
	}

	// A late subscriber never sees the already-published event over the stream,
	// but a fresh snapshot does show the player as eliminated
	late := publisher.Subscribe()
	defer publisher.Unsubscribe(late)
	select {
	case event := <-late.Channel:
		t.Fatalf("Late subscriber received a replayed event: %+v", event)
	default:
	}
	snapshot, dberr := playerRepo.GetPlayer(ctx, logger, number)
	assert.Nil(t, dberr)
	assert.True(t, snapshot.Eliminated)
}

func TestConcurrentEliminationExactlyOneWins(t *testing.T) {
	subscriber := publisher.Subscribe()
	defer publisher.Unsubscribe(subscriber)
	number := registerTestPlayer(t, "Front Man")
	body, _ := json.Marshal(map[string]uint64{"playerNumber": number})

	// Two racing requests for the same player, exactly one commits
	statuses := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			request := test.RequestAPITest{
				Method:       http.MethodPatch,
				Path:         "/api/players",
				Body:         bytes.NewReader(body),
				WantResponse: []int{http.StatusOK, http.StatusConflict},
				Headers:      operatorHeaders,
			}
			w := test.ExecuteAPITest(logger, t, mockRouter, request)
			statuses <- w.Code
		}()
	}
	wg.Wait()
	close(statuses)

	got := []int{}
	for status := range statuses {
		got = append(got, status)
	}
	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, got)

	// And exactly one broadcast was emitted for the player
	select {
	case event := <-subscriber.Channel:
		assert.Equal(t, number, event.PlayerNumber)
	default:
		t.Fatal("No elimination event was broadcasted")
	}
	select {
	case event := <-subscriber.Channel:
		t.Fatalf("Duplicate broadcast observed: %+v", event)
	default:
	}
}

func TestRepositoryEliminateConditionalCommit(t *testing.T) {
	number := registerTestPlayer(t, "Sang Woo Mother")
	at := time.Now().UnixMilli()

	updated, dberr := playerRepo.EliminatePlayer(ctx, logger, number, at)
	assert.Nil(t, dberr)
	assert.True(t, updated.Eliminated)
	assert.Equal(t, at, updated.EliminatedAt)
	// The full record comes back from the transaction's own reads,
	// no fetch happens after the commit
	assert.Equal(t, number, updated.PlayerNumber)
	assert.Equal(t, "Sang Woo Mother", updated.Name)
	assert.Equal(t, entity.DefaultAvatar, updated.Avatar)

	// The second commit is refused without touching the stored timestamp
	_, dberr = playerRepo.EliminatePlayer(ctx, logger, number, at+5000)
	apperr, ok := dberr.(errors.ErrorResponse)
	assert.True(t, ok)
	assert.Equal(t, http.StatusConflict, apperr.Status)

	stored, geterr := playerRepo.GetPlayer(ctx, logger, number)
	assert.Nil(t, geterr)
	assert.Equal(t, at, stored.EliminatedAt)
}
