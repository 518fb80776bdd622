package models

// CartLine est une ligne de panier côté client : une référence produit et une quantité.
// Name sert uniquement aux messages d'erreur quand le produit a disparu.
type CartLine struct {
	ProductID string `json:"product_id" binding:"required"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// DisplayName retourne le nom à afficher au client pour cette ligne
func (l CartLine) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ProductID
}
