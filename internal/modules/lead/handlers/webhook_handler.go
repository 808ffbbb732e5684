package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/messaging"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/services"
)

// MediaResolver turns a provider media id into a fetchable URL.
type MediaResolver interface {
	GetMediaURL(ctx context.Context, mediaID string) (string, error)
}

// Ingestor accepts inbound messages into the turn pipeline. Implemented by
// the conversation service; duplicates resolve to (nil, nil).
type Ingestor interface {
	Ingest(ctx context.Context, in services.InboundMessage) (*models.Message, error)
}

type WebhookHandler struct {
	verifyToken string
	appSecret   string
	service     Ingestor
	media       MediaResolver
}

func NewWebhookHandler(verifyToken, appSecret string, service Ingestor, media MediaResolver) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		service:     service,
		media:       media,
	}
}

// Verify answers the provider's subscription handshake.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		log.Println("✅ Webhook verified")
		return c.SendString(challenge)
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"detail": "verification failed",
	})
}

// webhookPayload is the subset of the provider's notification we consume.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []inboundWhatsAppMessage `json:"messages"`
				Statuses []json.RawMessage        `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundWhatsAppMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image *inboundMedia `json:"image"`
	Audio *inboundMedia `json:"audio"`
	Video *inboundMedia `json:"video"`
}

type inboundMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

// Receive handles provider notifications. 200 is returned only after every
// carried message row is durably persisted; malformed payloads and status
// notifications also get 200 so the provider does not retry them.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	signature := c.Get("X-Hub-Signature-256")
	if !messaging.VerifySignature(h.appSecret, c.Body(), signature) {
		log.Println("❌ Webhook signature mismatch")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "invalid signature",
		})
	}

	var payload webhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		log.Printf("⚠️ Malformed webhook payload: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if err := h.ingestMessage(c.Context(), msg, names[msg.From]); err != nil {
					// The provider retries on non-200; the row was not
					// persisted, so a retry is what we want.
					log.Printf("❌ Failed to ingest message %s: %v", msg.ID, err)
					return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
						"detail": "ingest failed",
					})
				}
			}
			// Delivery/read status notifications are not consumed.
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) ingestMessage(ctx context.Context, msg inboundWhatsAppMessage, profileName string) error {
	in := services.InboundMessage{
		Party: repositories.Party{
			Platform:   models.PlatformWhatsApp,
			ExternalID: msg.From,
			Phone:      msg.From,
			FullName:   profileName,
		},
		ExternalID:  msg.ID,
		MessageType: models.MessageText,
	}

	var media *inboundMedia
	switch msg.Type {
	case "text", "":
		if msg.Text != nil {
			in.Content = msg.Text.Body
		}
	case models.MessageImage:
		in.MessageType = models.MessageImage
		media = msg.Image
	case models.MessageAudio:
		in.MessageType = models.MessageAudio
		media = msg.Audio
	case models.MessageVideo:
		in.MessageType = models.MessageVideo
		media = msg.Video
	default:
		// Unsupported types still become rows so the transcript is complete.
		in.Content = "[" + msg.Type + " message]"
	}

	if media != nil {
		in.Content = media.Caption
		if h.media != nil && media.ID != "" {
			if url, err := h.media.GetMediaURL(ctx, media.ID); err == nil {
				in.MediaURL = url
			} else {
				log.Printf("⚠️ Failed to resolve media %s: %v", media.ID, err)
			}
		}
	}

	_, err := h.service.Ingest(ctx, in)
	return err
}
