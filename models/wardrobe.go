package models

import "github.com/lib/pq"

type WardrobeItem struct {
	JsonModel
	Name     string      `json:"name"`
	Owner    UserAccount `json:"-"`
	OwnerID  uint        `json:"-"`
	ImageKey *string     `json:"image_key"`

	// filled by the background analysis task
	ItemDetected bool           `json:"item_detected"`
	Category     *string        `json:"category"`     // top, bottom, dress, shoes, accessory...
	SubCategory  *string        `json:"sub_category"` // t-shirt, denim jacket...
	MainColor    *string        `json:"main_color"`
	Attributes   pq.StringArray `gorm:"type:text[]" json:"attributes"`
	SearchTags   pq.StringArray `gorm:"type:text[]" json:"search_tags"`
	// dense re-render prompt kept for future generations of the same item
	DensePrompt *string `gorm:"type:text" json:"dense_prompt"`

	ProcessingStatus    string  `json:"processing_status"` // idle, analyzing, completed, failed
	ProcessRetryTimes   int     `json:"process_retry_times"`
	ProcessErrorMessage *string `json:"process_error_message"`
}

type WardrobeItemCreateIn struct {
	Name     string `json:"name" validate:"required"`
	FileName string `json:"file_name" validate:"required"`
}

type WardrobeItemCreateOut struct {
	Item      WardrobeItem `json:"item"`
	UploadUrl string       `json:"upload_url"`
}

type WardrobeItemUploadedIn struct {
	ItemId uint `json:"item_id" validate:"required"`
}

type WardrobeItemsDeleteIn struct {
	ItemIds []uint `json:"item_ids" validate:"required"`
}

type WardrobeItemOut struct {
	WardrobeItem
	ImageURL *string `json:"image_url"`
}
