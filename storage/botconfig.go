package storage

import "encoding/json"

// botConfig is the payload persisted in GlobalSettings.BotConfigJSON: the
// operator's explicit game selection, independent of discovery.
type botConfig struct {
	SelectedGames []string `json:"selected_games"`
}

// SelectedGames returns the condition ids the operator explicitly selected.
func (gs *GlobalSettings) SelectedGames() []string {
	if gs.BotConfigJSON == "" {
		return nil
	}
	var bc botConfig
	if err := json.Unmarshal([]byte(gs.BotConfigJSON), &bc); err != nil {
		return nil
	}
	return bc.SelectedGames
}

// AddSelectedGame records a condition id in the persisted selection so
// recovery re-adopts it even if the tracked-market row is lost.
func (d *Database) AddSelectedGame(userID, conditionID string) error {
	gs, err := d.GetOrCreateSettings(userID, GlobalSettings{BotEnabled: true})
	if err != nil {
		return err
	}

	selected := gs.SelectedGames()
	for _, id := range selected {
		if id == conditionID {
			return nil
		}
	}
	selected = append(selected, conditionID)

	raw, err := json.Marshal(botConfig{SelectedGames: selected})
	if err != nil {
		return err
	}
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Update("bot_config_json", string(raw)).Error
}

// RemoveSelectedGame drops a condition id from the persisted selection.
func (d *Database) RemoveSelectedGame(userID, conditionID string) error {
	gs, err := d.GetOrCreateSettings(userID, GlobalSettings{BotEnabled: true})
	if err != nil {
		return err
	}

	selected := gs.SelectedGames()
	kept := selected[:0]
	for _, id := range selected {
		if id != conditionID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(selected) {
		return nil
	}

	raw, err := json.Marshal(botConfig{SelectedGames: kept})
	if err != nil {
		return err
	}
	return d.db.Model(&GlobalSettings{}).
		Where("user_id = ?", userID).
		Update("bot_config_json", string(raw)).Error
}
