package quiz

import "github.com/menta2k/ecorecycle/pkg/types"

// DefaultCurated holds the material-specific pools, keyed by mapping key
var DefaultCurated = map[string][]types.QuizQuestion{
	"papel": {
		{
			Text:               "¿En qué caneca se deposita el papel limpio y seco?",
			Options:            []string{"Verde", "Gris", "Negra", "Blanca"},
			CorrectOptionIndex: 1,
			Explanation:        "El papel limpio y seco es aprovechable y va en la caneca gris.",
		},
		{
			Text:               "¿Se puede reciclar una servilleta de papel con grasa?",
			Options:            []string{"Sí", "No"},
			CorrectOptionIndex: 1,
			Explanation:        "La grasa contamina la fibra; el papel sucio va a la caneca negra.",
		},
	},
	"cartón": {
		{
			Text:               "¿Qué debes hacer con una caja de cartón antes de reciclarla?",
			Options:            []string{"Mojarla", "Desarmarla y aplanarla", "Quemarla"},
			CorrectOptionIndex: 1,
			Explanation:        "Aplanar el cartón ahorra espacio y facilita su recolección.",
		},
	},
	"plástico": {
		{
			Text:               "¿Qué se recomienda hacer con la tapa de una botella plástica?",
			Options:            []string{"Dejarla puesta con líquido", "Retirarla y vaciar la botella", "Tirarla al suelo"},
			CorrectOptionIndex: 1,
			Explanation:        "La botella vacía y sin tapa se clasifica y compacta mejor.",
		},
		{
			Text:               "¿Cuánto puede tardar una botella plástica en degradarse?",
			Options:            []string{"1 año", "10 años", "Cientos de años"},
			CorrectOptionIndex: 2,
			Explanation:        "El plástico PET puede tardar cientos de años en degradarse.",
		},
	},
	"vidrio": {
		{
			Text:               "¿En qué caneca va una botella de vidrio lavada?",
			Options:            []string{"Blanca", "Verde", "Negra"},
			CorrectOptionIndex: 0,
			Explanation:        "El vidrio limpio es aprovechable y va en la caneca blanca.",
		},
		{
			Text:               "¿Cuántas veces se puede reciclar el vidrio?",
			Options:            []string{"Una sola vez", "Dos veces", "Indefinidamente"},
			CorrectOptionIndex: 2,
			Explanation:        "El vidrio se puede fundir y reutilizar sin perder calidad.",
		},
	},
	"metal": {
		{
			Text:               "¿Qué caneca corresponde a una lata de aluminio?",
			Options:            []string{"Azul", "Verde", "Negra"},
			CorrectOptionIndex: 0,
			Explanation:        "Las latas son aprovechables y van en la caneca azul.",
		},
		{
			Text:               "¿Cuánta energía ahorra reciclar aluminio frente a producirlo nuevo?",
			Options:            []string{"Cerca del 10%", "Cerca del 50%", "Cerca del 95%"},
			CorrectOptionIndex: 2,
			Explanation:        "Reciclar aluminio ahorra alrededor del 95% de la energía.",
		},
	},
	"orgánico": {
		{
			Text:               "¿Qué se puede hacer con los residuos orgánicos?",
			Options:            []string{"Compostaje", "Fundirlos", "Nada"},
			CorrectOptionIndex: 0,
			Explanation:        "Los residuos orgánicos se convierten en abono mediante compostaje.",
		},
	},
}

// DefaultGeneral is the pool used to pad a quiz
var DefaultGeneral = []types.QuizQuestion{
	{
		Text:               "¿Qué significa la regla de las tres erres?",
		Options:            []string{"Reducir, reutilizar, reciclar", "Romper, rasgar, rellenar", "Recoger, revisar, regalar"},
		CorrectOptionIndex: 0,
		Explanation:        "Reducir, reutilizar y reciclar, en ese orden de prioridad.",
	},
	{
		Text:               "¿Qué color de caneca recibe los residuos no aprovechables?",
		Options:            []string{"Blanca", "Negra", "Verde"},
		CorrectOptionIndex: 1,
		Explanation:        "La caneca negra es para residuos no aprovechables.",
	},
	{
		Text:               "¿Por qué conviene lavar los envases antes de reciclarlos?",
		Options:            []string{"Para que pesen más", "Para no contaminar otros materiales", "No conviene"},
		CorrectOptionIndex: 1,
		Explanation:        "Los restos de comida contaminan el material aprovechable.",
	},
	{
		Text:               "¿Dónde se deben llevar las pilas usadas?",
		Options:            []string{"Caneca verde", "Punto de recolección especial", "Caneca blanca"},
		CorrectOptionIndex: 1,
		Explanation:        "Las pilas son residuos peligrosos y tienen puntos de recolección propios.",
	},
	{
		Text:               "¿Qué es mejor para el ambiente?",
		Options:            []string{"Usar bolsas reutilizables", "Pedir bolsa en cada compra"},
		CorrectOptionIndex: 0,
		Explanation:        "Reutilizar evita generar residuos desde el origen.",
	},
	{
		Text:               "¿El icopor se recicla en la caneca blanca?",
		Options:            []string{"Sí", "No, casi nunca se aprovecha"},
		CorrectOptionIndex: 1,
		Explanation:        "El poliestireno expandido rara vez se recupera y suele ir a la caneca negra.",
	},
}
