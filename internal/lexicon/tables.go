package lexicon

// Static keyword tables per supported language. All entries are stored
// lowercase; matching is substring-based over normalized text.
//
// Supported languages: English, German, French, Spanish, Italian, Dutch,
// Portuguese, Polish.

// primaryKeywords are the core consent vocabulary (cookie/consent/privacy/
// gdpr family).
var primaryKeywords = map[string][]string{
	"en": {"cookie", "cookies", "consent", "privacy", "gdpr", "data protection"},
	"de": {"cookie", "cookies", "einwilligung", "zustimmung", "datenschutz", "dsgvo"},
	"fr": {"cookie", "cookies", "consentement", "confidentialité", "rgpd", "données personnelles"},
	"es": {"cookie", "cookies", "consentimiento", "privacidad", "rgpd", "protección de datos"},
	"it": {"cookie", "cookies", "consenso", "privacy", "gdpr", "protezione dei dati"},
	"nl": {"cookie", "cookies", "toestemming", "privacy", "avg", "gegevensbescherming"},
	"pt": {"cookie", "cookies", "consentimento", "privacidade", "rgpd", "proteção de dados"},
	"pl": {"cookie", "cookies", "zgoda", "prywatność", "rodo", "ochrona danych"},
}

// secondaryKeywords are the action vocabulary around consent choices.
var secondaryKeywords = map[string][]string{
	"en": {"accept", "reject", "decline", "agree", "manage", "preferences", "tracking", "settings"},
	"de": {"akzeptieren", "ablehnen", "zustimmen", "verwalten", "einstellungen", "tracking"},
	"fr": {"accepter", "refuser", "gérer", "paramètres", "préférences", "suivi"},
	"es": {"aceptar", "rechazar", "gestionar", "configuración", "preferencias", "rastreo"},
	"it": {"accetta", "rifiuta", "gestisci", "impostazioni", "preferenze", "tracciamento"},
	"nl": {"accepteren", "weigeren", "beheren", "instellingen", "voorkeuren", "volgen"},
	"pt": {"aceitar", "rejeitar", "recusar", "gerir", "definições", "preferências"},
	"pl": {"akceptuj", "odrzuć", "zarządzaj", "ustawienia", "preferencje", "śledzenie"},
}

// bannerPhrases are characteristic consent-banner sentences.
var bannerPhrases = map[string][]string{
	"en": {"we use cookies", "this website uses", "this site uses cookies", "by continuing to browse", "improve your experience"},
	"de": {"wir verwenden cookies", "diese website verwendet", "um ihr erlebnis zu verbessern"},
	"fr": {"nous utilisons des cookies", "ce site utilise", "pour améliorer votre expérience"},
	"es": {"utilizamos cookies", "este sitio utiliza", "para mejorar su experiencia"},
	"it": {"utilizziamo i cookie", "questo sito utilizza", "per migliorare la tua esperienza"},
	"nl": {"wij gebruiken cookies", "deze website gebruikt", "om uw ervaring te verbeteren"},
	"pt": {"utilizamos cookies", "este site utiliza", "para melhorar a sua experiência"},
	"pl": {"używamy plików cookie", "ta strona używa", "aby poprawić twoje doświadczenia"},
}

// legalTerms add a small credit; they co-occur with consent prose.
var legalTerms = []string{
	"legitimate interest", "personal data", "third parties", "third-party",
	"data controller", "processing purposes", "withdraw your consent",
	"berechtigtes interesse", "personenbezogene daten", "drittanbieter",
	"intérêt légitime", "données personnelles", "interés legítimo",
	"interesse legittimo", "gerechtvaardigd belang", "interesse legítimo",
	"uzasadniony interes",
}

// exclusionPhrases mark surfaces that are never consent banners (commerce,
// auth, navigation, media, social, developer tooling).
var exclusionPhrases = []string{
	"add to cart", "checkout", "shopping cart", "order summary", "free shipping",
	"sign in", "log in", "login", "sign up", "create account", "forgot password",
	"newsletter", "subscribe now", "breaking news",
	"play video", "now playing", "watch now", "volume", "fullscreen",
	"share on facebook", "share on twitter", "follow us",
	"developer tools", "console", "debug mode", "localhost",
	"search results", "table of contents",
}

// rejectVeryHigh are unambiguous reject-all phrasings (score 0.95 base).
var rejectVeryHigh = []string{
	"reject all", "decline all", "refuse all", "deny all",
	"alle ablehnen", "tout refuser", "rechazar todo", "rifiuta tutto",
	"alles weigeren", "rejeitar tudo", "odrzuć wszystkie",
	"only essential", "essential only", "nur notwendige",
	"use necessary cookies only", "only necessary",
}

// rejectHigh are strong but slightly less explicit rejects (score 0.8 base).
var rejectHigh = []string{
	"reject", "decline", "refuse", "deny", "disagree", "do not accept",
	"no thanks", "no, thanks", "not now",
	"ablehnen", "verweigern", "refuser", "rechazar", "rifiuta",
	"weigeren", "rejeitar", "recusar", "odrzuć", "nie zgadzam",
	"continue without accepting", "continuer sans accepter",
	"opt out", "opt-out",
}

// rejectMedium need supporting context before they count (score 0.55 base).
var rejectMedium = []string{
	"disable", "turn off", "deactivate", "later", "dismiss", "close",
	"deaktivieren", "désactiver", "desactivar", "disattiva", "uitschakelen",
	"desativar", "wyłącz",
}

// acceptPhrases carry the accept penalty.
var acceptPhrases = []string{
	"accept all", "accept cookies", "allow all", "agree to all", "enable all",
	"accept", "agree", "allow", "got it", "i understand", "ok, got it",
	"alle akzeptieren", "akzeptieren", "zustimmen", "alles toestaan",
	"tout accepter", "accepter", "aceptar todo", "aceptar",
	"accetta tutto", "accetta", "accepteren", "aceitar tudo", "aceitar",
	"zaakceptuj wszystkie", "akceptuj", "zgadzam się",
}

// ambiguousActions are neutral words that need reject context to score.
var ambiguousActions = []string{
	"continue", "confirm", "save", "submit", "next", "ok", "done", "apply",
	"weiter", "bestätigen", "speichern", "continuer", "confirmer", "enregistrer",
	"continuar", "confirmar", "guardar", "continua", "conferma", "salva",
	"doorgaan", "bevestigen", "opslaan", "kontynuuj", "potwierdź", "zapisz",
}

// managePhrases open a preference center.
var managePhrases = []string{
	"manage preferences", "manage settings", "manage cookies", "cookie settings",
	"cookie preferences", "privacy settings", "privacy options", "more options",
	"customize", "customise", "personalize", "let me choose", "configure",
	"einstellungen verwalten", "cookie-einstellungen", "anpassen",
	"gérer les préférences", "paramétrer les cookies", "personnaliser",
	"gestionar preferencias", "configurar cookies", "personalizar",
	"gestisci preferenze", "impostazioni cookie", "personalizza",
	"voorkeuren beheren", "cookie-instellingen", "aanpassen",
	"gerir preferências", "definições de cookies",
	"zarządzaj preferencjami", "ustawienia plików cookie", "dostosuj",
}

// savePhrases confirm a configured preference center. Labels containing an
// accept-all phrase are excluded by the matcher, not this table.
var savePhrases = []string{
	"save preferences", "save settings", "save choices", "save and exit",
	"save & exit", "confirm choices", "confirm my choices", "confirm selection",
	"save", "confirm", "apply",
	"auswahl speichern", "einstellungen speichern", "auswahl bestätigen",
	"enregistrer les préférences", "valider mes choix", "enregistrer",
	"guardar preferencias", "confirmar selección", "guardar",
	"salva preferenze", "conferma le scelte", "salva",
	"voorkeuren opslaan", "keuzes bevestigen", "opslaan",
	"guardar preferências", "confirmar escolhas",
	"zapisz preferencje", "potwierdź wybór", "zapisz",
}

// acceptAllPhrases invalidate a save label outright.
var acceptAllPhrases = []string{
	"accept all", "allow all", "agree to all", "enable all",
	"alle akzeptieren", "alles akzeptieren", "tout accepter",
	"aceptar todo", "accetta tutto", "alles toestaan", "aceitar tudo",
	"zaakceptuj wszystkie",
}

// continuePhrases advance progressive (wizard-style) flows.
var continuePhrases = []string{
	"continue", "next", "proceed", "weiter", "continuer", "suivant",
	"continuar", "siguiente", "continua", "avanti", "doorgaan", "volgende",
	"continuar", "seguinte", "kontynuuj", "dalej",
}

// essentialCategories must never be disabled.
var essentialCategories = []string{
	"necessary", "strictly necessary", "essential", "required", "functional",
	"security", "technical",
	"notwendig", "erforderlich", "funktional", "sicherheit", "technisch",
	"nécessaire", "essentiel", "fonctionnel", "sécurité", "technique",
	"necesario", "esencial", "funcional", "seguridad", "técnico",
	"necessario", "essenziale", "funzionale", "sicurezza", "tecnico",
	"noodzakelijk", "essentieel", "functioneel", "beveiliging", "technisch",
	"necessário", "essencial", "funcional", "segurança", "técnico",
	"niezbędne", "konieczne", "funkcjonalne", "bezpieczeństwo", "techniczne",
}

// nonEssentialCategories are disabled during category configuration.
var nonEssentialCategories = []string{
	"marketing", "advertising", "advertisement", "ads", "analytics",
	"statistics", "tracking", "performance", "personalization",
	"personalisation", "targeting", "social media", "retargeting",
	"werbung", "analyse", "statistiken", "personalisierung",
	"publicité", "statistiques", "personnalisation", "ciblage",
	"publicidad", "estadísticas", "personalización", "análisis",
	"pubblicità", "statistiche", "personalizzazione", "analisi",
	"advertenties", "statistieken", "personalisatie", "analytisch",
	"publicidade", "estatísticas", "personalização", "análise",
	"reklama", "reklamowe", "statystyki", "personalizacja", "analityczne",
}

// rejectAttributeHints are class/id fragments that suggest reject intent.
var rejectAttributeHints = []string{
	"reject", "decline", "refuse", "deny", "opt-out", "optout", "disagree",
	"necessary-only", "essential-only",
}

// acceptAttributeHints are class/id fragments that suggest accept intent.
var acceptAttributeHints = []string{
	"accept", "agree", "allow", "consent-all", "opt-in", "optin",
}

// preferenceIndicators identify an opened preference center in the DOM.
var preferenceIndicators = []string{
	"[class*='preference']", "[class*='consent-settings']",
	"[class*='cookie-settings']", "[class*='category']",
	"[class*='purposes']", "[role='tabpanel']", "[class*='pc-panel']",
	"[id*='preference']", "[id*='cookie-settings']",
}
