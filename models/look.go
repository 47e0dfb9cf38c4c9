package models

import "time"

// Subject is the durable base image of a user's virtual model. At most one
// row per owner is live at a time; swapping the subject deletes the previous
// row together with every look generated against it.
type Subject struct {
	JsonModel
	Owner    UserAccount `json:"-"`
	OwnerID  uint        `json:"-"`
	ImageKey string      `json:"image_key"`
}

// Look is one generated try-on result owned by a user.
type Look struct {
	JsonModel
	Owner    UserAccount   `json:"-"`
	OwnerID  uint          `json:"-"`
	ImageKey string        `json:"image_key"`
	Garments []LookGarment `json:"garments"`

	LLMModel            *string `json:"llm_model"`
	LLMInputTokenCount  *int32  `json:"llm_input_token_usage"`
	LLMOutputTokenCount *int32  `json:"llm_output_token_usage"`
	LLMTotalTokenCount  *int32  `json:"llm_total_token_usage"`
}

// LookGarment denormalizes the wardrobe items worn in a look, so the look
// survives deletion of the wardrobe rows it was generated from.
type LookGarment struct {
	JsonModel
	LookID   uint   `json:"-"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	ImageKey string `json:"image_key"`
}

// GarmentRef is the transport form of a garment attached to a look.
type GarmentRef struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	ImageKey string `json:"image_key"`
}

// LookRecord is the transport form of a look, also used as the element of
// the in-memory result store. IDs are strings: durable looks carry the
// formatted row id, optimistic entries carry a "look-<nanos>" placeholder
// until the durable id arrives.
type LookRecord struct {
	ID        string       `json:"id"`
	ImageKey  string       `json:"image_key"`
	ImageURL  string       `json:"image_url,omitempty"`
	Garments  []GarmentRef `json:"garments"`
	CreatedAt time.Time    `json:"created_at"`
}

type SubjectRecord struct {
	ID       string `json:"id"`
	ImageKey string `json:"image_key"`
	ImageURL string `json:"image_url,omitempty"`
}
