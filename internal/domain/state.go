package domain

// State — полный снимок процесса для внешнего key-value хранилища
type State struct {
	Vaults     []Vault         `json:"vaults"`
	Activity   []ActivityEntry `json:"activity"`
	Role       Role            `json:"role"`
	SelectedID string          `json:"selectedId,omitempty"`
}
