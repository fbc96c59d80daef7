// Package room はマルチプレイヤールーム（ロビー）のドメインロジックを提供する。
//
// ルームは短い招待コードで識別され、waiting → playing → finished の順に遷移する。
// 状態が変わるたびにBroadcasterを通じてルームのリアルタイムチャネルへ通知する。
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/quizroom/internal/metrics"
	"github.com/hitoshi/quizroom/internal/model"
	"github.com/hitoshi/quizroom/internal/repository"
	"github.com/hitoshi/quizroom/internal/security"
)

// リアルタイムチャネルに配信するイベント種別
const (
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventRoomStarted  = "room_started"
	EventScoreUpdated = "score_updated"
	EventRoomFinished = "room_finished"
)

const (
	// maxCodeAttempts は招待コード衝突時の最大試行回数。
	maxCodeAttempts = 5
	// maxDisplayNameLength は表示名の最大文字数。
	maxDisplayNameLength = 50
	// minPlayers はルーム定員の下限。
	minPlayers = 2
)

// Broadcaster はルームのリアルタイムチャネルへのイベント配信インターフェース。
type Broadcaster interface {
	Broadcast(roomCode, eventType string, payload any)
}

// QuizFinder はルームに紐づくクイズの取得インターフェース。
type QuizFinder interface {
	FindByID(ctx context.Context, quizID string) (*model.Quiz, error)
}

// InviteSender は招待メール送信のインターフェース。
type InviteSender interface {
	SendRoomInvite(ctx context.Context, to, hostName, roomCode, joinURL string) error
}

// Config はルームの既定値。
type Config struct {
	MaxPlayers int
	CodeLength int
	BaseURL    string
}

// CreateParams はルーム作成の入力。
type CreateParams struct {
	QuizID      string
	MaxPlayers  int
	DisplayName string
}

// Detail はルーム、参加者、および開始後のクイズをまとめたもの。
type Detail struct {
	model.RoomWithPlayers
	Quiz *model.Quiz // 参加者かつ開始後の場合のみ設定する
}

// Service はルームのサービス層。
type Service struct {
	rooms       repository.RoomRepository
	players     repository.PlayerRepository
	quizzes     QuizFinder
	broadcaster Broadcaster
	mailer      InviteSender
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	config      Config

	now          func() time.Time
	newID        func() string
	generateCode func(length int) (string, error)
}

// NewService はServiceの新しいインスタンスを生成する。
// mailerがnilの場合、招待メールはEMAIL_DISABLEDとなる。
func NewService(
	rooms repository.RoomRepository,
	players repository.PlayerRepository,
	quizzes QuizFinder,
	broadcaster Broadcaster,
	mailer InviteSender,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	if config.CodeLength <= 0 {
		config.CodeLength = 6
	}
	if config.MaxPlayers < minPlayers {
		config.MaxPlayers = 8
	}
	return &Service{
		rooms:        rooms,
		players:      players,
		quizzes:      quizzes,
		broadcaster:  broadcaster,
		mailer:       mailer,
		sanitizer:    sanitizer,
		metrics:      mc,
		logger:       logger,
		config:       config,
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		generateCode: GenerateCode,
	}
}

// Create はルームを作成し、ホストを最初の参加者として登録する。
// 招待コードが衝突した場合は新しいコードで最大5回まで再試行する。
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*Detail, error) {
	name, nameOK := s.cleanDisplayName(params.DisplayName)
	maxPlayers := params.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.config.MaxPlayers
	}

	var invalid []string
	if !nameOK {
		invalid = append(invalid, "displayName")
	}
	if maxPlayers < minPlayers || maxPlayers > s.config.MaxPlayers {
		invalid = append(invalid, "maxPlayers")
	}
	if len(invalid) > 0 {
		return nil, model.NewValidationError(invalid...)
	}

	if params.QuizID != "" {
		quiz, err := s.quizzes.FindByID(ctx, params.QuizID)
		if err != nil {
			return nil, err
		}
		if quiz.UserID != userID {
			return nil, model.NewQuizNotFoundError(params.QuizID)
		}
	}

	now := s.now()
	room := &model.Room{
		ID:         s.newID(),
		HostID:     userID,
		QuizID:     params.QuizID,
		Status:     model.RoomStatusWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	host := &model.Player{
		ID:          s.newID(),
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: name,
		JoinedAt:    now,
	}

	for attempt := 1; ; attempt++ {
		code, err := s.generateCode(s.config.CodeLength)
		if err != nil {
			return nil, err
		}
		room.Code = code

		err = s.rooms.CreateWithHost(ctx, room, host)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrRoomCodeConflict) {
			return nil, fmt.Errorf("ルームの作成に失敗しました: %w", err)
		}
		if attempt >= maxCodeAttempts {
			return nil, fmt.Errorf("招待コードの生成に%d回失敗しました: %w", attempt, err)
		}
		s.logger.Warn("招待コードが衝突したため再生成します",
			slog.String("code", code),
			slog.Int("attempt", attempt),
		)
	}

	s.metrics.RecordRoomCreated()
	s.logger.Info("ルームを作成しました",
		slog.String("room_id", room.ID),
		slog.String("code", room.Code),
		slog.String("user_id", userID),
	)

	return &Detail{
		RoomWithPlayers: model.RoomWithPlayers{Room: *room, Players: []model.Player{*host}},
	}, nil
}

// Get は招待コードでルームと参加者を取得する。
// 開始後のルームでは参加者に限りクイズ本体も返す。
func (s *Service) Get(ctx context.Context, userID, code string) (*Detail, error) {
	room, err := s.findRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	players, err := s.players.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}

	detail := &Detail{RoomWithPlayers: model.RoomWithPlayers{Room: *room, Players: players}}
	if room.Status != model.RoomStatusWaiting && room.QuizID != "" && detail.HasPlayer(userID) {
		quiz, err := s.quizzes.FindByID(ctx, room.QuizID)
		if err != nil {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				return nil, err
			}
			// クイズが削除済みの場合はルーム情報のみ返す
		} else {
			detail.Quiz = quiz
		}
	}
	return detail, nil
}

// Join はルームに参加する。既に参加済みの場合は既存の参加者を返す（冪等）。
// 戻り値のboolは新規に参加した場合にtrueとなる。
func (s *Service) Join(ctx context.Context, userID, code, displayName string) (*model.Player, bool, error) {
	name, ok := s.cleanDisplayName(displayName)
	if !ok {
		return nil, false, model.NewValidationError("displayName")
	}

	room, err := s.findRoom(ctx, code)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.players.FindByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if room.Status != model.RoomStatusWaiting {
		return nil, false, model.NewRoomNotJoinableError(room.Status)
	}

	player := &model.Player{
		ID:          s.newID(),
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: name,
		JoinedAt:    s.now(),
	}
	added, err := s.players.AddWithinCapacity(ctx, player, room.MaxPlayers)
	if err != nil {
		// 読み取り後にホストが開始・終了した場合
		var notWaiting *repository.RoomNotWaitingError
		if errors.As(err, &notWaiting) {
			return nil, false, model.NewRoomNotJoinableError(notWaiting.Status)
		}
		return nil, false, fmt.Errorf("ルームへの参加に失敗しました: %w", err)
	}
	if !added {
		// 同じユーザーの同時リクエストで先に登録された場合はそれを返す
		existing, err := s.players.FindByRoomAndUser(ctx, room.ID, userID)
		if err != nil {
			return nil, false, fmt.Errorf("参加者の取得に失敗しました: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
		return nil, false, model.NewRoomFullError(room.MaxPlayers)
	}

	s.metrics.RecordRoomJoin()
	s.broadcast(room.Code, EventPlayerJoined, playerPayload(*player))
	return player, true, nil
}

// Leave はルームから退出する。
// ホストが待機中のルームから退出した場合、ルームは終了する。
func (s *Service) Leave(ctx context.Context, userID, code string) error {
	room, err := s.findRoom(ctx, code)
	if err != nil {
		return err
	}

	removed, err := s.players.Remove(ctx, room.ID, userID)
	if err != nil {
		return fmt.Errorf("ルームからの退出に失敗しました: %w", err)
	}
	if !removed {
		return model.NewNotRoomPlayerError()
	}

	s.broadcast(room.Code, EventPlayerLeft, map[string]any{"userId": userID})

	if room.HostID == userID && room.Status == model.RoomStatusWaiting {
		finished, err := s.rooms.TransitionStatus(ctx, room.ID, model.RoomStatusFinished, model.RoomStatusWaiting)
		if err != nil {
			return fmt.Errorf("ルームの終了に失敗しました: %w", err)
		}
		// 退出と同時に開始された場合は進行中のまま残す
		if finished {
			s.broadcast(room.Code, EventRoomFinished, map[string]any{"reason": "host_left"})
		}
	}
	return nil
}

// Start はホストがルームを開始する。クイズが設定されている必要がある。
func (s *Service) Start(ctx context.Context, userID, code string) (*model.Room, error) {
	room, err := s.findRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != userID {
		return nil, model.NewNotRoomHostError()
	}
	if room.Status != model.RoomStatusWaiting {
		return nil, model.NewRoomAlreadyStartedError()
	}
	if room.QuizID == "" {
		return nil, model.NewRoomQuizRequiredError()
	}

	started, err := s.rooms.TransitionStatus(ctx, room.ID, model.RoomStatusPlaying, model.RoomStatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("ルームの開始に失敗しました: %w", err)
	}
	if !started {
		return nil, model.NewRoomAlreadyStartedError()
	}
	room.Status = model.RoomStatusPlaying
	room.UpdatedAt = s.now()

	s.broadcast(room.Code, EventRoomStarted, map[string]any{"quizId": room.QuizID})
	return room, nil
}

// SubmitScore は進行中のルームで参加者のスコアを記録する。
func (s *Service) SubmitScore(ctx context.Context, userID, code string, score int) error {
	if score < 0 {
		return model.NewValidationError("score")
	}

	room, err := s.findRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.Status != model.RoomStatusPlaying {
		return model.NewRoomNotPlayingError()
	}

	player, err := s.players.FindByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		return fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if player == nil {
		return model.NewNotRoomPlayerError()
	}

	if err := s.players.UpdateScore(ctx, room.ID, userID, score); err != nil {
		return fmt.Errorf("スコアの更新に失敗しました: %w", err)
	}

	s.broadcast(room.Code, EventScoreUpdated, map[string]any{"userId": userID, "score": score})
	return nil
}

// Finish はホストがルームを終了する。終了済みの場合は何もしない。
func (s *Service) Finish(ctx context.Context, userID, code string) (*Detail, error) {
	room, err := s.findRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.HostID != userID {
		return nil, model.NewNotRoomHostError()
	}

	players, err := s.players.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}

	if room.Status != model.RoomStatusFinished {
		finished, err := s.rooms.TransitionStatus(ctx, room.ID, model.RoomStatusFinished,
			model.RoomStatusWaiting, model.RoomStatusPlaying)
		if err != nil {
			return nil, fmt.Errorf("ルームの終了に失敗しました: %w", err)
		}
		room.Status = model.RoomStatusFinished
		room.UpdatedAt = s.now()

		// 別のリクエストが先に終了させていた場合は通知済み
		if finished {
			standings := make([]map[string]any, len(players))
			for i, p := range players {
				standings[i] = playerPayload(p)
			}
			s.broadcast(room.Code, EventRoomFinished, map[string]any{"players": standings})
		}
	}

	return &Detail{RoomWithPlayers: model.RoomWithPlayers{Room: *room, Players: players}}, nil
}

// Invite は参加者が待機中のルームへの招待メールを送信する。
func (s *Service) Invite(ctx context.Context, userID, code, email string) error {
	if s.mailer == nil {
		return model.NewEmailDisabledError()
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return model.NewValidationError("email")
	}

	room, err := s.findRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.Status != model.RoomStatusWaiting {
		return model.NewRoomNotJoinableError(room.Status)
	}

	sender, err := s.players.FindByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		return fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if sender == nil {
		return model.NewNotRoomPlayerError()
	}

	joinURL := strings.TrimRight(s.config.BaseURL, "/") + "/rooms/" + room.Code
	if err := s.mailer.SendRoomInvite(ctx, addr.Address, sender.DisplayName, room.Code, joinURL); err != nil {
		s.logger.Error("招待メールの送信に失敗しました",
			slog.String("room_id", room.ID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewEmailFailedError()
	}
	return nil
}

// findRoom は招待コードを正規化してルームを取得する。
func (s *Service) findRoom(ctx context.Context, code string) (*model.Room, error) {
	normalized, ok := NormalizeCode(code)
	if !ok {
		return nil, model.NewRoomNotFoundError(code)
	}
	room, err := s.rooms.FindByCode(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("ルームの取得に失敗しました: %w", err)
	}
	if room == nil {
		return nil, model.NewRoomNotFoundError(normalized)
	}
	return room, nil
}

func (s *Service) cleanDisplayName(name string) (string, bool) {
	if s.sanitizer != nil {
		name = s.sanitizer.Sanitize(name)
	} else {
		name = strings.TrimSpace(name)
	}
	n := utf8.RuneCountInString(name)
	return name, n > 0 && n <= maxDisplayNameLength
}

func (s *Service) broadcast(code, eventType string, payload any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(code, eventType, payload)
}

func playerPayload(p model.Player) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"userId":      p.UserID,
		"displayName": p.DisplayName,
		"score":       p.Score,
	}
}
