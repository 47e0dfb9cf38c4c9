package models

type SubjectCreateIn struct {
	FileName string `json:"file_name" validate:"required"`
}

type SubjectCreateOut struct {
	UploadUrl string `json:"upload_url"`
	PhotoKey  string `json:"photo_key"`
}

type SubjectGenerateIn struct {
	PhotoKey string `json:"photo_key" validate:"required"`
}

type TryOnIn struct {
	ItemId uint `json:"item_id" validate:"required"`
}

type ComposeIn struct {
	ItemIds []uint `json:"item_ids" validate:"required,min=1"`
}

// VaryIn re-renders an existing look; at least one of pose or mood must
// carry an instruction, a vary with neither would be a plain copy.
type VaryIn struct {
	LookId string `json:"look_id" validate:"required"`
	Pose   string `json:"pose" validate:"required_without=Mood"`
	Mood   string `json:"mood" validate:"required_without=Pose"`
}

type StyleScoreOut struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

type StudioNotice struct {
	TaskId  string `json:"task_id"`
	Kind    string `json:"kind"` // blocked, failed, precondition
	Message string `json:"message"`
}

type StudioStatusOut struct {
	Pending   int            `json:"pending"`
	Executing bool           `json:"executing"`
	Progress  int            `json:"progress"`
	Subject   *SubjectRecord `json:"subject"`
	Looks     []LookRecord   `json:"looks"`
	Notices   []StudioNotice `json:"notices"`
}

type EnqueueOut struct {
	TaskId  string `json:"task_id"`
	Pending int    `json:"pending"`
}
