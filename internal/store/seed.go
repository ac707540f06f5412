package store

import (
	"context"
	"fmt"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
)

// Seed inserts the demo user and the public starter templates. It is a no-op
// when public templates already exist.
func Seed(ctx context.Context, s Store) error {
	existing, err := s.ListTemplates(ctx, TemplateFilter{PublicOnly: true})
	if err != nil {
		return fmt.Errorf("failed to check existing templates: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	_, err = s.CreateUser(ctx, models.User{
		Username:    "johndoe",
		Email:       "john.doe@example.com",
		DisplayName: "John Doe",
	})
	if err != nil && !apperrors.IsConflictError(err) {
		return fmt.Errorf("failed to seed default user: %w", err)
	}

	for _, t := range starterTemplates() {
		if _, err := s.CreateTemplate(ctx, t); err != nil {
			return fmt.Errorf("failed to seed template %q: %w", t.Name, err)
		}
	}
	return nil
}

func starterTemplates() []models.Template {
	interview := "Professional interview format with host and guest speakers"
	demo := "Showcase product features with engaging visuals and narration"
	return []models.Template{
		{
			Name:        "Interview Podcast",
			Description: &interview,
			Category:    "podcast",
			IsPublic:    true,
			Script: models.Script{
				FormatVersion: "1.0",
				Speakers: []models.Speaker{
					{Name: "Host", Voice: models.VoiceAlloy},
					{Name: "Guest", Voice: models.VoiceNova},
				},
				Beats: []models.Beat{
					{Text: "Welcome to our podcast. Today we have a special guest...", Speaker: "Host"},
					{Text: "Thank you for having me!", Speaker: "Guest"},
				},
			},
		},
		{
			Name:        "Product Demo Video",
			Description: &demo,
			Category:    "video",
			IsPublic:    true,
			Script: models.Script{
				FormatVersion: "1.0",
				Speakers:      []models.Speaker{{Name: "Narrator", Voice: models.VoiceAlloy}},
				Beats: []models.Beat{
					{
						Text:    "Let me show you the amazing features of our new product...",
						Speaker: "Narrator",
						Image:   &models.BeatImage{Prompt: "Modern product showcase with clean background"},
					},
				},
			},
		},
	}
}
