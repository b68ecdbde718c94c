package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"fedauction/internal/coordinator"
)

// LogRoundToDiscord posts a summary of a round. Failed rounds are posted in
// red.
func LogRoundToDiscord(discURL string, r coordinator.RoundReport) error {
	color := "3447003"
	title := fmt.Sprintf("Round %d complete", r.Round)
	if r.Error != "" {
		color = "15548997"
		title = fmt.Sprintf("Round %d failed at %s", r.Round, r.FailedPhase)
	}
	rewards := make([]string, len(r.Allocations))
	for i, a := range r.Allocations {
		rewards[i] = fmt.Sprintf("%s=%s", a.Address, a.Reward)
	}
	desc := fmt.Sprintf("Run: %s\n\nCommittee: %v\n\nRewards: %v\n\nCommitment: %s (verified: %t)",
		r.RunID, r.CommitteeAddresses(), rewards, r.Commitment, r.Verified)
	if r.Error != "" {
		desc = fmt.Sprintf("%s\n\nError: %s", desc, r.Error)
	}
	uname := "Coordinator Logs"
	msg := Message{
		Username: &uname,
		Embeds: &[]Embed{{
			Title:       &title,
			Description: &desc,
			Color:       &color,
		}},
	}
	err := SendDiscordMessage(discURL, msg)
	if err != nil {
		return err
	}
	return nil
}

func SendDiscordMessage(url string, message Message) error {
	if len(url) == 0 {
		return nil
	}
	payload := new(bytes.Buffer)

	err := json.NewEncoder(payload).Encode(message)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", payload)
	if err != nil {
		return err
	}

	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		defer func() {
			_ = resp.Body.Close()
		}()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		return fmt.Errorf("%s", responseBody)
	}

	return nil
}

type Message struct {
	Username        *string          `json:"username,omitempty"`
	AvatarUrl       *string          `json:"avatar_url,omitempty"`
	Content         *string          `json:"content,omitempty"`
	Embeds          *[]Embed         `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

type Embed struct {
	Title       *string    `json:"title,omitempty"`
	Url         *string    `json:"url,omitempty"`
	Description *string    `json:"description,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Author      *Author    `json:"author,omitempty"`
	Fields      *[]Field   `json:"fields,omitempty"`
	Thumbnail   *Thumbnail `json:"thumbnail,omitempty"`
	Image       *Image     `json:"image,omitempty"`
	Footer      *Footer    `json:"footer,omitempty"`
}

type Author struct {
	Name    *string `json:"name,omitempty"`
	Url     *string `json:"url,omitempty"`
	IconUrl *string `json:"icon_url,omitempty"`
}

type Field struct {
	Name   *string `json:"name,omitempty"`
	Value  *string `json:"value,omitempty"`
	Inline *bool   `json:"inline,omitempty"`
}

type Thumbnail struct {
	Url *string `json:"url,omitempty"`
}

type Image struct {
	Url *string `json:"url,omitempty"`
}

type Footer struct {
	Text    *string `json:"text,omitempty"`
	IconUrl *string `json:"icon_url,omitempty"`
}

type AllowedMentions struct {
	Parse *[]string `json:"parse,omitempty"`
	Users *[]string `json:"users,omitempty"`
	Roles *[]string `json:"roles,omitempty"`
}
