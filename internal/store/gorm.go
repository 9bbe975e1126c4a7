package store

import (
	"context"
	"time"

	"gamelobby/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of a gorm connection or transaction.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore instance.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormStore{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return translate("transaction", err)
	}
	return err
}

// region --- Users ---

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
	return translate("create user", err)
}

func (s *GormStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate("find user by id", err)
	}
	return &user, nil
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translate("find user by username", err)
	}
	return &user, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate("find user by email", err)
	}
	return &user, nil
}

func (s *GormStore) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		return nil, translate("find user by login", err)
	}
	return &user, nil
}

func (s *GormStore) UpdatePresence(ctx context.Context, userID uint, online bool, seen time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": seen})
	if result.Error != nil {
		return false, translate("update presence", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ? AND last_seen < ?", true, cutoff).
		Update("is_online", false)
	if result.Error != nil {
		return 0, translate("mark stale offline", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteUser removes the user together with the rows it owns and clears
// the user from any game it won.
func (s *GormStore) DeleteUser(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Game{}).Where("winner_id = ?", id).Update("winner_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.GameParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Player{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.User{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate("delete user", err)
}

// endregion

// region --- Players ---

func (s *GormStore) CreatePlayer(ctx context.Context, player *models.Player) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(player).Error
	return translate("create player", err)
}

func (s *GormStore) FindPlayerByUserID(ctx context.Context, userID uint) (*models.Player, error) {
	var player models.Player
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&player).Error; err != nil {
		return nil, translate("find player", err)
	}
	return &player, nil
}

func (s *GormStore) ListPlayersByLobby(ctx context.Context, lobbyID uint) ([]models.Player, error) {
	var players []models.Player
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("lobby_id = ?", lobbyID).
		Order("joined_at ASC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, translate("list lobby players", err)
	}
	return players, nil
}

// AssignPlayerLobby points the player at lobbyID only if it is not in a lobby yet.
func (s *GormStore) AssignPlayerLobby(ctx context.Context, userID, lobbyID uint, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("user_id = ? AND lobby_id IS NULL", userID).
		Updates(map[string]interface{}{"lobby_id": lobbyID, "is_ready": false, "joined_at": at})
	if result.Error != nil {
		return false, translate("assign player lobby", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ReleasePlayerLobby clears the player's lobby only if it is still lobbyID.
func (s *GormStore) ReleasePlayerLobby(ctx context.Context, userID, lobbyID uint, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("user_id = ? AND lobby_id = ?", userID, lobbyID).
		Updates(map[string]interface{}{"lobby_id": nil, "is_ready": false, "joined_at": at})
	if result.Error != nil {
		return false, translate("release player lobby", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) SetPlayerReady(ctx context.Context, userID, lobbyID uint, ready bool) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Player{}).
		Where("user_id = ? AND lobby_id = ?", userID, lobbyID).
		Update("is_ready", ready)
	if result.Error != nil {
		return false, translate("set player ready", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// endregion

// region --- Lobbies ---

func (s *GormStore) CreateLobby(ctx context.Context, lobby *models.Lobby) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(lobby).Error
	return translate("create lobby", err)
}

func (s *GormStore) FindLobbyByID(ctx context.Context, id uint) (*models.Lobby, error) {
	var lobby models.Lobby
	if err := s.db.WithContext(ctx).First(&lobby, id).Error; err != nil {
		return nil, translate("find lobby", err)
	}
	return &lobby, nil
}

// FindLobbyWithPlayers loads the lobby with its creator and live member list.
func (s *GormStore) FindLobbyWithPlayers(ctx context.Context, id uint) (*models.Lobby, error) {
	var lobby models.Lobby
	err := s.db.WithContext(ctx).
		Preload("Creator").
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Preload("Players.User").
		First(&lobby, id).Error
	if err != nil {
		return nil, translate("find lobby with players", err)
	}
	return &lobby, nil
}

func (s *GormStore) ListLobbies(ctx context.Context, filter LobbyFilter) ([]models.Lobby, int64, error) {
	base := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.Lobby{})
		if filter.ActiveOnly {
			query = query.Where("is_active = ?", true)
		}
		if filter.IdleOnly {
			query = query.Where("is_game_started = ?", false)
		}
		if filter.JoinableOnly {
			query = query.Where("is_active = ? AND is_game_started = ? AND current_players < max_players", true, false)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, translate("count lobbies", err)
	}

	query := base().Preload("Creator").Order("created_at DESC, id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var lobbies []models.Lobby
	if err := query.Find(&lobbies).Error; err != nil {
		return nil, 0, translate("list lobbies", err)
	}
	return lobbies, total, nil
}

func (s *GormStore) ListLobbyIDsByCreator(ctx context.Context, creatorID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("creator_id = ?", creatorID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, translate("list lobbies by creator", err)
	}
	return ids, nil
}

// LobbyOccupancy returns every lobby with the number of players referencing it.
func (s *GormStore) LobbyOccupancy(ctx context.Context) ([]Occupancy, error) {
	var lobbies []models.Lobby
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&lobbies).Error; err != nil {
		return nil, translate("list lobbies for occupancy", err)
	}

	var counts []struct {
		LobbyID uint
		Members int64
	}
	err := s.db.WithContext(ctx).Model(&models.Player{}).
		Select("lobby_id, COUNT(*) AS members").
		Where("lobby_id IS NOT NULL").
		Group("lobby_id").
		Scan(&counts).Error
	if err != nil {
		return nil, translate("count lobby members", err)
	}

	members := make(map[uint]int64, len(counts))
	for _, c := range counts {
		members[c.LobbyID] = c.Members
	}

	result := make([]Occupancy, 0, len(lobbies))
	for _, lobby := range lobbies {
		result = append(result, Occupancy{Lobby: lobby, Members: members[lobby.ID]})
	}
	return result, nil
}

// IncrementLobbyPlayers takes a slot only while the lobby is joinable and not full.
func (s *GormStore) IncrementLobbyPlayers(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("id = ? AND is_active = ? AND is_game_started = ? AND current_players < max_players", id, true, false).
		Update("current_players", gorm.Expr("current_players + ?", 1))
	if result.Error != nil {
		return false, translate("increment lobby players", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) DecrementLobbyPlayers(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("id = ? AND current_players > 0", id).
		Update("current_players", gorm.Expr("current_players - ?", 1))
	if result.Error != nil {
		return false, translate("decrement lobby players", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) SetLobbyCreator(ctx context.Context, id, creatorID uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("id = ?", id).
		Update("creator_id", creatorID)
	if result.Error != nil {
		return false, translate("set lobby creator", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeactivateLobby switches an empty lobby off.
func (s *GormStore) DeactivateLobby(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("id = ? AND current_players = ?", id, 0).
		Update("is_active", false)
	if result.Error != nil {
		return false, translate("deactivate lobby", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetLobbyGameStarted flips is_game_started; it reports false when the
// flag already had the requested value.
func (s *GormStore) SetLobbyGameStarted(ctx context.Context, id uint, started bool) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Lobby{}).
		Where("id = ? AND is_game_started = ?", id, !started).
		Update("is_game_started", started)
	if result.Error != nil {
		return false, translate("set lobby game started", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteLobby releases the lobby's members and removes it with its games.
func (s *GormStore) DeleteLobby(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Player{}).
			Where("lobby_id = ?", id).
			Updates(map[string]interface{}{"lobby_id": nil, "is_ready": false}).Error
		if err != nil {
			return err
		}

		games := tx.Model(&models.Game{}).Select("id").Where("lobby_id = ?", id)
		if err := tx.Where("game_id IN (?)", games).Delete(&models.GameParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("lobby_id = ?", id).Delete(&models.Game{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Lobby{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate("delete lobby", err)
}

// endregion

// region --- Games ---

// CreateGame inserts the game and the participant snapshot together.
func (s *GormStore) CreateGame(ctx context.Context, game *models.Game, participantIDs []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(game).Error; err != nil {
			return err
		}
		if len(participantIDs) == 0 {
			return nil
		}

		participants := make([]models.GameParticipant, 0, len(participantIDs))
		for _, userID := range participantIDs {
			participants = append(participants, models.GameParticipant{GameID: game.ID, UserID: userID})
		}
		return tx.Omit(clause.Associations).Create(&participants).Error
	})
	return translate("create game", err)
}

func (s *GormStore) FindGameByID(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).Preload("Participants").First(&game, id).Error; err != nil {
		return nil, translate("find game", err)
	}
	return &game, nil
}

func (s *GormStore) ListGamesByLobby(ctx context.Context, lobbyID uint) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).
		Where("lobby_id = ?", lobbyID).
		Order("created_at DESC, id DESC").
		Find(&games).Error
	if err != nil {
		return nil, translate("list lobby games", err)
	}
	return games, nil
}

func (s *GormStore) IsGameParticipant(ctx context.Context, gameID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.GameParticipant{}).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		Count(&count).Error
	if err != nil {
		return false, translate("check game participant", err)
	}
	return count > 0, nil
}

// AdvanceGameTurn increments the turn counter of an unfinished game.
func (s *GormStore) AdvanceGameTurn(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND is_finished = ?", id, false).
		Update("current_turn", gorm.Expr("current_turn + ?", 1))
	if result.Error != nil {
		return false, translate("advance game turn", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FinishGame marks an unfinished game as finished with an optional winner.
func (s *GormStore) FinishGame(ctx context.Context, id uint, winnerID *uint) (bool, error) {
	updates := map[string]interface{}{"is_finished": true, "winner_id": nil}
	if winnerID != nil {
		updates["winner_id"] = *winnerID
	}

	result := s.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ? AND is_finished = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return false, translate("finish game", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// endregion
